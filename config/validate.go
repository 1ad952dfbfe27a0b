package config

import (
	"strings"
)

// Validate checks that every reserved top-level key is present. It does not
// mutate raw.
func Validate(raw RawConfig) error {
	for _, k := range reservedKeys {
		if _, ok := raw[k]; !ok {
			return newConfigError("required key %q missing in test config", k)
		}
	}
	if _, ok := asList(raw[KeyTestBed]); !ok {
		return newConfigError("key %q must be a list of test bed configs, found %T", KeyTestBed, raw[KeyTestBed])
	}
	if _, err := toStringList(raw[KeyTestPaths]); err != nil {
		return wrapConfigError(err, "invalid value for key %q", KeyTestPaths)
	}
	if s, ok := raw[KeyLogPath].(string); !ok || s == "" {
		return newConfigError("key %q must be a non-empty string", KeyLogPath)
	}
	return nil
}

// ValidateTestBedName checks that name is a non-empty string made only of
// filename-safe characters.
func ValidateTestBedName(name any) error {
	s, ok := name.(string)
	if !ok {
		return newConfigError("test bed names have to be string, found %T", name)
	}
	if s == "" {
		return newConfigError("test bed names can't be empty")
	}
	for _, c := range s {
		if !strings.ContainsRune(validFilenameChars, c) {
			return newConfigError("char %q is not allowed in test bed name %q", c, s)
		}
	}
	return nil
}

// ValidateTestBeds validates every test bed name and rejects duplicates. The
// first occurrence of a name wins; the second one triggers the failure.
func ValidateTestBeds(beds []any) error {
	seen := make(map[string]int, len(beds))
	for i, b := range beds {
		bed, ok := asMap(b)
		if !ok {
			return newConfigError("test bed #%d is not a key/value object, found %T", i, b)
		}
		name, ok := bed[KeyTestBedName]
		if !ok {
			return newConfigError("test bed #%d has no %q key", i, KeyTestBedName)
		}
		if err := ValidateTestBedName(name); err != nil {
			return wrapConfigError(err, "invalid test bed #%d", i)
		}
		s := name.(string)
		if first, dup := seen[s]; dup {
			return newConfigError("duplicate test bed name %q found in test beds #%d and #%d", s, first, i)
		}
		seen[s] = i
	}
	return nil
}
