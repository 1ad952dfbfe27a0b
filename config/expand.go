package config

import (
	"path/filepath"
)

// ExpandedConfig is the shared config merged with exactly one test bed. It is
// handed to a runner and treated as read-only from then on.
type ExpandedConfig struct {
	TestBedName string    `json:"testbed_name"`
	RunID       string    `json:"run_id,omitempty"`
	LogPath     string    `json:"logpath"`
	TestPaths   []string  `json:"testpaths"`
	ConfigDir   string    `json:"config_dir,omitempty"`
	CLIArgs     []string  `json:"cli_args,omitempty"`
	Params      RawConfig `json:"params"`  // Shared keys plus promoted test bed keys
	TestBed     RawConfig `json:"testbed"` // Test bed internal keys (name, controllers)
}

// Overrides are applied on top of a raw config during expansion.
type Overrides struct {
	LogPath   string   // Replaces the logpath key when set
	TestPaths []string // Replaces the testpaths key when set
	CLIArgs   []string // Free-form arguments forwarded to every test bed
	RunID     string
	ConfigDir string
}

// Param returns a user param by key.
func (c *ExpandedConfig) Param(key string) (any, bool) {
	v, ok := c.Params[key]
	return v, ok
}

// Controller returns the controller config stored under key in the test bed.
func (c *ExpandedConfig) Controller(key string) (any, bool) {
	v, ok := c.TestBed[key]
	return v, ok
}

// Blob reassembles the full merged config, as seen by test classes.
func (c *ExpandedConfig) Blob() RawConfig {
	out := c.Params.Clone()
	if out == nil {
		out = RawConfig{}
	}
	out[KeyLogPath] = c.LogPath
	paths := make([]any, len(c.TestPaths))
	for i, p := range c.TestPaths {
		paths[i] = p
	}
	out[KeyTestPaths] = paths
	out[KeyTestBed] = map[string]any(c.TestBed.Clone())
	args := make([]any, len(c.CLIArgs))
	for i, a := range c.CLIArgs {
		args[i] = a
	}
	out[KeyCLIArgs] = args
	if c.ConfigDir != "" {
		out[KeyConfigDir] = c.ConfigDir
	}
	if c.RunID != "" {
		out[KeyRunID] = c.RunID
	}
	return out
}

// Expand produces one ExpandedConfig per test bed, in test bed order.
//
// When filter is non-empty only test beds named in it are kept, and every name
// in the filter must match a test bed. A key set in a test bed shadows the
// shared value of the same key for that test bed only. Expand never returns a
// partial result and never mutates raw.
func Expand(raw RawConfig, filter []string, ov Overrides) ([]*ExpandedConfig, error) {
	cfg := raw.Clone()
	if cfg == nil {
		return nil, newConfigError("test config is empty")
	}
	if ov.LogPath != "" {
		cfg[KeyLogPath] = ov.LogPath
	}
	if len(ov.TestPaths) > 0 {
		paths := make([]any, len(ov.TestPaths))
		for i, p := range ov.TestPaths {
			paths[i] = p
		}
		cfg[KeyTestPaths] = paths
	}

	if len(filter) > 0 {
		wanted := make(map[string]struct{}, len(filter))
		for _, name := range filter {
			wanted[name] = struct{}{}
		}
		beds, _ := asList(cfg[KeyTestBed])
		var kept []any
		for _, b := range beds {
			bed, ok := asMap(b)
			if !ok {
				continue
			}
			if name, ok := bed[KeyTestBedName].(string); ok {
				if _, ok := wanted[name]; ok {
					kept = append(kept, b)
				}
			}
		}
		if len(kept) != len(wanted) {
			return nil, newConfigError("expected to find %d test bed configs, found %d; check if you have the correct test bed names",
				len(wanted), len(kept))
		}
		cfg[KeyTestBed] = kept
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	beds, _ := asList(cfg[KeyTestBed])
	if err := ValidateTestBeds(beds); err != nil {
		return nil, err
	}

	logPath, err := filepath.Abs(cfg[KeyLogPath].(string))
	if err != nil {
		return nil, wrapConfigError(err, "resolving absolute path for log path '%s'", cfg[KeyLogPath])
	}
	cfg[KeyLogPath] = logPath

	shared := cfg.Clone()
	delete(shared, KeyTestBed)

	expanded := make([]*ExpandedConfig, 0, len(beds))
	for _, b := range beds {
		bed, _ := asMap(b)
		ec, err := expandOne(shared, cloneMap(bed), ov)
		if err != nil {
			return nil, err
		}
		expanded = append(expanded, ec)
	}
	return expanded, nil
}

// expandOne overlays one test bed onto a private copy of the shared config.
// A key already present at the shared level is overwritten by the test bed
// value and removed from the test bed. Other keys are moved up too, except the
// test bed internal ones, which stay in the test bed.
func expandOne(shared RawConfig, bed map[string]any, ov Overrides) (*ExpandedConfig, error) {
	name, _ := bed[KeyTestBedName].(string)
	merged := shared.Clone()
	for k, v := range bed {
		if _, inShared := merged[k]; !inShared && isTestBedInternalKey(k) {
			continue
		}
		merged[k] = v
		delete(bed, k)
	}

	logPath, ok := merged[KeyLogPath].(string)
	if !ok || logPath == "" {
		return nil, newConfigError("test bed %q has an invalid %q value", name, KeyLogPath)
	}
	logPath, err := filepath.Abs(logPath)
	if err != nil {
		return nil, wrapConfigError(err, "resolving absolute path for log path '%s'", logPath)
	}
	rawPaths, err := toStringList(merged[KeyTestPaths])
	if err != nil {
		return nil, wrapConfigError(err, "test bed %q has an invalid %q value", name, KeyTestPaths)
	}
	testPaths := make([]string, 0, len(rawPaths))
	for _, p := range rawPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, wrapConfigError(err, "resolving absolute path for test path '%s'", p)
		}
		testPaths = append(testPaths, abs)
	}

	for _, k := range reservedKeys {
		delete(merged, k)
	}

	var cliArgs []string
	if len(ov.CLIArgs) > 0 {
		cliArgs = make([]string, len(ov.CLIArgs))
		copy(cliArgs, ov.CLIArgs)
	}

	return &ExpandedConfig{
		TestBedName: name,
		RunID:       ov.RunID,
		LogPath:     logPath,
		TestPaths:   testPaths,
		ConfigDir:   ov.ConfigDir,
		CLIArgs:     cliArgs,
		Params:      merged,
		TestBed:     RawConfig(bed),
	}, nil
}
