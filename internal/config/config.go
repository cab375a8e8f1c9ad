// SPDX-License-Identifier: MPL-2.0

package config

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/dtcheck/dtcheck/internal/issue"
	"github.com/dtcheck/dtcheck/pkg/types"
)

const (
	// AppName is the application name.
	AppName = "dtcheck"
	// ConfigFileName is the name of the config file in the config directory
	// (without extension).
	ConfigFileName = "config"
	// LocalConfigFileName is the name of a project config file in the
	// working directory (without extension).
	LocalConfigFileName = "dtcheck"
	// EnvPrefix prefixes environment overrides, e.g. DTCHECK_CHECKER_TIMEOUT.
	EnvPrefix = "DTCHECK"

	// FormatCUE is the CUE config format.
	FormatCUE = "cue"
	// FormatTOML is the TOML config format.
	FormatTOML = "toml"
)

//go:embed config_schema.cue
var configSchema string

// Formats lists the supported config file extensions in lookup order.
var Formats = []string{FormatCUE, FormatTOML}

// ConfigDir returns the dtcheck configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	// Allow tests to override the config directory
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// newViper returns a viper instance with defaults and environment
// overrides registered.
func newViper() *viper.Viper {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("registry_url", defaults.RegistryURL)
	v.SetDefault("registry_timeout", defaults.RegistryTimeout)
	v.SetDefault("exemptions_path", defaults.ExemptionsPath)
	v.SetDefault("checker.command", defaults.Checker.Command)
	v.SetDefault("checker.rules_path", defaults.Checker.RulesPath)
	v.SetDefault("checker.timeout", defaults.Checker.Timeout)
	v.SetDefault("typescript_versions", defaults.TypeScriptVersions)
	v.SetDefault("concurrency", defaults.Concurrency)
	v.SetDefault("log_level", string(defaults.LogLevel))
	v.SetDefault("ui.color_scheme", string(defaults.UI.ColorScheme))
	v.SetDefault("ui.verbose", defaults.UI.Verbose)
	v.SetDefault("watch.debounce", defaults.Watch.Debounce)
	v.SetDefault("watch.patterns", defaults.Watch.Patterns)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// loadWithOptions performs option-driven config loading without mutating
// package-level state.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := newViper()

	resolvedPath := ""
	// Paths in the per-user file stay relative to the working directory;
	// project and --config files are relative to themselves.
	pathBase := ""
	if opts.ConfigFilePath != "" {
		// An explicit --config file is used exclusively.
		if !fileExists(opts.ConfigFilePath) {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Check that the file exists and is readable").
				WithSuggestion("Use 'dtcheck config show' to see the default configuration").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		resolvedPath = opts.ConfigFilePath
		pathBase = filepath.Dir(resolvedPath)
	} else {
		cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
		if err != nil {
			return nil, err
		}
		resolvedPath = findConfigFile(
			filepath.Join(cfgDir, ConfigFileName),
			filepath.Join(opts.WorkDir, LocalConfigFileName),
		)
		if resolvedPath != "" && filepath.Dir(resolvedPath) != filepath.Clean(cfgDir) {
			pathBase = filepath.Dir(resolvedPath)
		}
	}

	if resolvedPath != "" {
		if err := loadFileIntoViper(v, resolvedPath); err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithSuggestion("Check that the file contains valid CUE or TOML syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("Run 'dtcheck config init' to write a file with every field").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.source = resolvedPath
	resolveFilePaths(v, &cfg, pathBase)

	if valid, errs := cfg.IsValid(); !valid {
		return nil, issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Check DTCHECK_* environment variables for typos").
			WithSuggestion("Run 'dtcheck config dump' to see the effective values").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(errs[0]).
			BuildError()
	}

	return &cfg, nil
}

// resolveFilePaths joins relative paths set in the loaded file onto base.
// Defaults and environment values are left alone.
func resolveFilePaths(v *viper.Viper, cfg *Config, base string) {
	if base == "" {
		return
	}
	fromFile := func(key string) bool {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_, fromEnv := os.LookupEnv(envKey)
		return v.InConfig(key) && !fromEnv
	}
	if fromFile("exemptions_path") {
		cfg.ExemptionsPath = types.FilesystemPath(cfg.ExemptionsPath).ResolveAgainst(base).String()
	}
	if fromFile("checker.rules_path") {
		cfg.Checker.RulesPath = types.FilesystemPath(cfg.Checker.RulesPath).ResolveAgainst(base).String()
	}
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}

	return ConfigDir()
}

// findConfigFile returns the first existing "<base>.<format>" for the
// given bases, trying formats in Formats order.
func findConfigFile(bases ...string) string {
	for _, base := range bases {
		for _, format := range Formats {
			if p := base + "." + format; fileExists(p) {
				return p
			}
		}
	}
	return ""
}

// loadFileIntoViper validates a CUE or TOML file against the #Config
// schema and merges its contents into Viper.
func loadFileIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxConfigFileSize {
		return fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", path, len(data), maxConfigFileSize)
	}

	ctx := cuecontext.New()
	var value cue.Value
	switch format := strings.TrimPrefix(filepath.Ext(path), "."); format {
	case FormatCUE:
		value = ctx.CompileBytes(data, cue.Filename(path))
	case FormatTOML:
		var doc map[string]any
		if err := toml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		value = ctx.Encode(doc)
	default:
		return fmt.Errorf("%s: unsupported config format %q (supported: %s)", path, format, strings.Join(Formats, ", "))
	}
	if value.Err() != nil {
		return formatCUEError(value.Err(), path)
	}

	configMap, err := validateAgainstSchema(ctx, value, path)
	if err != nil {
		return err
	}

	// Merge into Viper (preserves defaults, allows env overrides)
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// DefaultConfigPath returns where "config init" writes a file of the
// given format.
func DefaultConfigPath(format string) (string, error) {
	if !slices.Contains(Formats, format) {
		return "", fmt.Errorf("unsupported config format %q (supported: %s)", format, strings.Join(Formats, ", "))
	}
	cfgDir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfgDir, ConfigFileName+"."+format), nil
}

// CreateDefaultConfig writes a default config file of the given format
// unless one exists. It returns the path and whether it was created.
func CreateDefaultConfig(format string) (string, bool, error) {
	cfgPath, err := DefaultConfigPath(format)
	if err != nil {
		return "", false, err
	}
	if fileExists(cfgPath) {
		return cfgPath, false, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := Generate(DefaultConfig(), format)
	if err != nil {
		return "", false, err
	}
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		return "", false, fmt.Errorf("failed to write config file: %w", err)
	}
	return cfgPath, true, nil
}

// Generate renders cfg as a config file of the given format.
func Generate(cfg *Config, format string) (string, error) {
	switch format {
	case FormatCUE:
		return GenerateCUE(cfg), nil
	case FormatTOML:
		return GenerateTOML(cfg)
	default:
		return "", fmt.Errorf("unsupported config format %q (supported: %s)", format, strings.Join(Formats, ", "))
	}
}

// GenerateTOML generates a TOML representation of the configuration.
func GenerateTOML(cfg *Config) (string, error) {
	var buf bytes.Buffer
	buf.WriteString("# dtcheck configuration file\n\n")
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(cfg.Map()); err != nil {
		return "", fmt.Errorf("failed to encode TOML: %w", err)
	}
	return buf.String(), nil
}

// GenerateCUE generates a CUE representation of the configuration
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// dtcheck configuration file\n\n")

	fmt.Fprintf(&sb, "registry_url:     %q\n", cfg.RegistryURL)
	fmt.Fprintf(&sb, "registry_timeout: %q\n", cfg.RegistryTimeout.String())
	fmt.Fprintf(&sb, "exemptions_path:  %q\n", cfg.ExemptionsPath)

	sb.WriteString("\nchecker: {\n")
	fmt.Fprintf(&sb, "\tcommand:    %q\n", cfg.Checker.Command)
	fmt.Fprintf(&sb, "\trules_path: %q\n", cfg.Checker.RulesPath)
	fmt.Fprintf(&sb, "\ttimeout:    %q\n", cfg.Checker.Timeout.String())
	sb.WriteString("}\n")

	sb.WriteString("\ntypescript_versions: " + cueStrings(cfg.TypeScriptVersions) + "\n")
	fmt.Fprintf(&sb, "concurrency: %d\n", cfg.Concurrency)
	fmt.Fprintf(&sb, "log_level:   %q\n", cfg.LogLevel)

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tcolor_scheme: %q\n", cfg.UI.ColorScheme)
	fmt.Fprintf(&sb, "\tverbose:      %v\n", cfg.UI.Verbose)
	sb.WriteString("}\n")

	sb.WriteString("\nwatch: {\n")
	fmt.Fprintf(&sb, "\tdebounce: %q\n", cfg.Watch.Debounce.String())
	sb.WriteString("\tpatterns: " + cueStrings(cfg.Watch.Patterns) + "\n")
	sb.WriteString("}\n")

	return sb.String()
}

func cueStrings(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, fmt.Sprintf("%q", v))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
