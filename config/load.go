package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"
)

// Load reads a raw config from path. The decoder is chosen by file extension:
// .yaml/.yml, .toml, anything else is treated as JSON.
func Load(path string) (RawConfig, error) {
	log.Debug("Reading test config file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapConfigError(err, "reading config file %s", path)
	}

	raw := RawConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	case ".toml":
		err = toml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, wrapConfigError(err, "parsing config file %s", path)
	}
	if raw == nil {
		return nil, newConfigError("config file %s is empty", path)
	}
	return raw, nil
}

// LoadAndExpand loads the config at path and expands it into one config per
// selected test bed.
func LoadAndExpand(path string, filter []string, ov Overrides) ([]*ExpandedConfig, error) {
	raw, err := Load(path)
	if err != nil {
		return nil, err
	}
	if ov.ConfigDir == "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, wrapConfigError(err, "resolving absolute path for config file '%s'", path)
		}
		ov.ConfigDir = filepath.Dir(abs)
	}
	return Expand(raw, filter, ov)
}
