// Package config loads and validates example configuration.
//
// Configuration comes from the process environment, optionally seeded from a
// dotenv file (copied from .env.example). Each vendor integration declares a
// Section; Load populates every section an example uses and fails fast,
// naming all missing keys, before any network activity takes place.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/codingconcepts/env"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

// DefaultEnvFile is the dotenv file read when no other path is given.
const DefaultEnvFile = ".env"

// Section is one group of settings read from the environment.
// Implementations are pointers to structs tagged for codingconcepts/env.
type Section interface {
	// Name identifies the section in error messages.
	Name() string

	// Missing returns the environment keys that are required but unset.
	Missing() []string

	// Validate reports malformed values once required keys are present.
	Validate() error
}

// ConfigError represents a configuration failure detected at startup.
type ConfigError struct {
	// Keys lists required environment variables that are missing.
	Keys []string

	// Err is set for malformed values or unreadable env files.
	Err error
}

func (e *ConfigError) Error() string {
	if len(e.Keys) > 0 {
		return fmt.Sprintf("missing required configuration: %s (copy .env.example to .env and set them)",
			strings.Join(e.Keys, ", "))
	}
	return fmt.Sprintf("invalid configuration: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is, or wraps, a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// LoadEnvFile loads a dotenv file into the process environment, overriding
// variables that are already set. A missing file is only an error when
// required is true. It reports whether a file was read.
func LoadEnvFile(path string, required bool) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return false, nil
		}
		return false, &ConfigError{Err: fmt.Errorf("env file %s: %w", path, err)}
	}

	if err := godotenv.Overload(path); err != nil {
		return false, &ConfigError{Err: fmt.Errorf("parse env file %s: %w", path, err)}
	}
	return true, nil
}

// Load populates each section from the environment and validates it.
// All missing keys across sections are reported together, sorted.
func Load(sections ...Section) error {
	var missing []string

	for _, s := range sections {
		if err := env.Set(s); err != nil {
			return &ConfigError{Err: fmt.Errorf("%s settings: %w", s.Name(), err)}
		}
		missing = append(missing, s.Missing()...)
	}

	if len(missing) > 0 {
		missing = lo.Uniq(missing)
		sort.Strings(missing)
		return &ConfigError{Keys: missing}
	}

	for _, s := range sections {
		if err := s.Validate(); err != nil {
			return &ConfigError{Err: fmt.Errorf("%s settings: %w", s.Name(), err)}
		}
	}
	return nil
}

// required returns the keys whose values are empty.
func required(pairs map[string]string) []string {
	return lo.Keys(lo.PickBy(pairs, func(_ string, v string) bool {
		return strings.TrimSpace(v) == ""
	}))
}
