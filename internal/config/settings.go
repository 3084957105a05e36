package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed settings.cue
var settingsSchema string

// Settings is the process-level configuration loaded from a YAML file
// and validated against the embedded CUE schema.
type Settings struct {
	Nick    string            `yaml:"nick" json:"nick,omitempty"`
	DB      string            `yaml:"db" json:"db,omitempty"`
	Log     string            `yaml:"log" json:"log,omitempty"`
	Quota   int64             `yaml:"quota" json:"quota,omitempty"`
	Aliases map[string]string `yaml:"aliases" json:"aliases,omitempty"`
}

// DefaultSettingsPath returns the per-user settings file location.
func DefaultSettingsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "owndata", "settings.yaml"), nil
}

// DefaultDBPath returns the per-user catalog database location.
func DefaultDBPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "owndata", "owndata.db"), nil
}

// LoadSettings reads and validates the settings file. A missing file
// yields zero-value settings, not an error.
func LoadSettings(path string) (Settings, error) {
	var s Settings

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return s, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return s, fmt.Errorf("invalid settings file %s: %w", path, err)
	}
	if raw == nil {
		return s, nil
	}
	if err := validateSettings(raw); err != nil {
		return s, fmt.Errorf("invalid settings file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("invalid settings file %s: %w", path, err)
	}
	return s, nil
}

// validateSettings unifies the document with the CUE schema and reports
// constraint violations with their source positions.
func validateSettings(raw map[string]any) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(settingsSchema, cue.Filename("settings.cue"))
	if schema.Err() != nil {
		return fmt.Errorf("settings schema: %w", schema.Err())
	}

	value := ctx.Encode(raw)
	if value.Err() != nil {
		return value.Err()
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return err
	}
	return nil
}
