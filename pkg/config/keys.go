package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/viper"
)

// ValidConfigKeys returns every known dotted config key, sorted.
func ValidConfigKeys() []string {
	v := viper.New()
	setViperDefaults(v)
	keys := v.AllKeys()
	sort.Strings(keys)
	return keys
}

// IsValidConfigKey reports whether key names a known config field.
func IsValidConfigKey(key string) bool {
	v := viper.New()
	setViperDefaults(v)
	return v.IsSet(key)
}

// ConfigFilePath resolves the config.toml location for configDir, using
// the default data directory when configDir is empty.
func ConfigFilePath(configDir string) string {
	if configDir == "" {
		configDir = defaultDataDir()
	}
	return filepath.Join(configDir, "config.toml")
}

// SetValue persists one key into the config file, creating the file and
// its directory as needed. Other file values are preserved; defaults are
// not written out.
func SetValue(configDir, key, value string) (string, error) {
	path := ConfigFilePath(configDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		// A missing file is fine; anything else is corruption worth
		// surfacing before we overwrite it.
		if _, statErr := os.Stat(path); statErr == nil {
			return "", fmt.Errorf("reading config: %w", err)
		}
	}

	v.Set(key, value)
	if err := v.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("writing config: %w", err)
	}
	return path, nil
}

// GetValue resolves one key through the full precedence chain (env, file,
// defaults).
func GetValue(configDir, key string) (any, error) {
	v, err := InitViper(configDir)
	if err != nil {
		return nil, err
	}
	return v.Get(key), nil
}
