// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dtcheck/dtcheck/internal/compat"
	"github.com/dtcheck/dtcheck/internal/exemption"
	"github.com/dtcheck/dtcheck/internal/registry"
)

const (
	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"

	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"

	// DefaultCheckerCommand runs @arethetypeswrong/cli on the bundle.
	DefaultCheckerCommand = "npx --yes @arethetypeswrong/cli --format json {tarball}"
)

var (
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidField is the sentinel error wrapped by InvalidFieldError.
	ErrInvalidField = errors.New("invalid config field")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

// DefaultTypeScriptVersions are the versions "minimumTypeScriptVersion"
// may name unless configured otherwise.
var DefaultTypeScriptVersions = []string{"5.0", "5.1", "5.2", "5.3", "5.4", "5.5", "5.6", "5.7", "5.8", "5.9"}

type (
	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// InvalidColorSchemeError is returned when a ColorScheme value is not recognized.
	// It wraps ErrInvalidColorScheme for errors.Is() compatibility.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// LogLevel is the minimum level of log records written to stderr.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidFieldError reports one field that failed validation.
	InvalidFieldError struct {
		Field  string
		Value  any
		Reason string
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sub-components.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// RegistryURL is the npm-compatible registry implementation
		// packages are resolved against.
		RegistryURL string `json:"registry_url" mapstructure:"registry_url"`
		// RegistryTimeout bounds a single registry request.
		RegistryTimeout time.Duration `json:"registry_timeout" mapstructure:"registry_timeout"`
		// ExemptionsPath is the list of packages allowed to mismatch npm.
		ExemptionsPath string `json:"exemptions_path" mapstructure:"exemptions_path"`
		// Checker configures the type-correctness checker.
		Checker CheckerConfig `json:"checker" mapstructure:"checker"`
		// TypeScriptVersions lists the accepted "minimumTypeScriptVersion" values.
		TypeScriptVersions []string `json:"typescript_versions" mapstructure:"typescript_versions"`
		// Concurrency is how many packages are checked at once.
		Concurrency int `json:"concurrency" mapstructure:"concurrency"`
		// LogLevel sets the log verbosity.
		LogLevel LogLevel `json:"log_level" mapstructure:"log_level"`
		// UI configures the user interface
		UI UIConfig `json:"ui" mapstructure:"ui"`
		// Watch configures "dtcheck watch".
		Watch WatchConfig `json:"watch" mapstructure:"watch"`

		source string
	}

	// CheckerConfig configures the external type-correctness checker.
	CheckerConfig struct {
		// Command is the checker command line; "{tarball}" is replaced with
		// the bundle path.
		Command string `json:"command" mapstructure:"command"`
		// RulesPath is the rule config with failingPackages and ignoreRules.
		RulesPath string `json:"rules_path" mapstructure:"rules_path"`
		// Timeout bounds one checker run. Zero disables the limit.
		Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		// ColorScheme sets the color scheme
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
		// Verbose enables verbose output
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}

	// WatchConfig configures file watching.
	WatchConfig struct {
		// Debounce groups bursts of file events into one re-check.
		Debounce time.Duration `json:"debounce" mapstructure:"debounce"`
		// Patterns are doublestar globs of files that trigger a re-check.
		Patterns []string `json:"patterns" mapstructure:"patterns"`
	}
)

// Source returns the file the configuration was loaded from, or "" when
// only defaults and environment variables applied.
func (c *Config) Source() string { return c.source }

// Map returns the configuration keyed by its file field names, with
// durations spelled the way config files spell them.
func (c *Config) Map() map[string]any {
	return map[string]any{
		"registry_url":     c.RegistryURL,
		"registry_timeout": c.RegistryTimeout.String(),
		"exemptions_path":  c.ExemptionsPath,
		"checker": map[string]any{
			"command":    c.Checker.Command,
			"rules_path": c.Checker.RulesPath,
			"timeout":    c.Checker.Timeout.String(),
		},
		"typescript_versions": c.TypeScriptVersions,
		"concurrency":         c.Concurrency,
		"log_level":           string(c.LogLevel),
		"ui": map[string]any{
			"color_scheme": string(c.UI.ColorScheme),
			"verbose":      c.UI.Verbose,
		},
		"watch": map[string]any{
			"debounce": c.Watch.Debounce.String(),
			"patterns": c.Watch.Patterns,
		},
	}
}

// IsValid returns whether the Config has valid fields. CUE validates
// config files; this also covers values that arrive through environment
// variables.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	invalid := func(field string, value any, reason string) {
		errs = append(errs, &InvalidFieldError{Field: field, Value: value, Reason: reason})
	}

	if u, err := url.Parse(c.RegistryURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		invalid("registry_url", c.RegistryURL, "must be an http(s) URL")
	}
	if c.RegistryTimeout <= 0 {
		invalid("registry_timeout", c.RegistryTimeout, "must be positive")
	}
	if strings.TrimSpace(c.Checker.Command) == "" {
		invalid("checker.command", c.Checker.Command, "must not be empty")
	}
	if c.Checker.Timeout < 0 {
		invalid("checker.timeout", c.Checker.Timeout, "must not be negative")
	}
	if len(c.TypeScriptVersions) == 0 {
		invalid("typescript_versions", c.TypeScriptVersions, "must not be empty")
	}
	if c.Concurrency < 1 {
		invalid("concurrency", c.Concurrency, "must be at least 1")
	}
	if c.Watch.Debounce < 0 {
		invalid("watch.debounce", c.Watch.Debounce, "must not be negative")
	}
	if valid, fieldErrs := c.LogLevel.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.UI.ColorScheme.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, err := range e.FieldErrors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig and the field errors for errors.Is()
// compatibility.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("%s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidFieldError) Unwrap() error { return ErrInvalidField }

// String returns the string representation of the ColorScheme.
func (cs ColorScheme) String() string { return string(cs) }

// IsValid returns whether the ColorScheme is one of the defined color schemes,
// and a list of validation errors if it is not.
func (cs ColorScheme) IsValid() (bool, []error) {
	switch cs {
	case ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return true, nil
	default:
		return false, []error{&InvalidColorSchemeError{Value: cs}}
	}
}

func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("invalid color scheme %q (valid: auto, dark, light)", e.Value)
}

func (e *InvalidColorSchemeError) Unwrap() error { return ErrInvalidColorScheme }

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string { return string(l) }

// IsValid returns whether the LogLevel is known.
func (l LogLevel) IsValid() (bool, []error) {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true, nil
	default:
		return false, []error{&InvalidLogLevelError{Value: l}}
	}
}

func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		RegistryURL:     registry.DefaultBaseURL,
		RegistryTimeout: registry.DefaultTimeout,
		ExemptionsPath:  exemption.DefaultPath(),
		Checker: CheckerConfig{
			Command:   DefaultCheckerCommand,
			RulesPath: compat.DefaultRulesFile,
			Timeout:   2 * time.Minute,
		},
		TypeScriptVersions: append([]string(nil), DefaultTypeScriptVersions...),
		Concurrency:        4,
		LogLevel:           LogLevelInfo,
		UI: UIConfig{
			ColorScheme: ColorSchemeAuto,
		},
		Watch: WatchConfig{
			Debounce: 300 * time.Millisecond,
			Patterns: []string{"**/*.ts", "**/*.json", "**/*.mts", "**/*.cts"},
		},
	}
}
