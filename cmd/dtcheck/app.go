// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/dtcheck/dtcheck/internal/checks"
	"github.com/dtcheck/dtcheck/internal/compat"
	"github.com/dtcheck/dtcheck/internal/config"
	"github.com/dtcheck/dtcheck/internal/exemption"
	"github.com/dtcheck/dtcheck/internal/issue"
	"github.com/dtcheck/dtcheck/internal/registry"
)

type (
	// App wires CLI services and shared dependencies. Every command handler
	// receives the App and reaches configuration, the registry and the
	// checker through it.
	App struct {
		Config     config.Provider
		Checker    compat.Checker
		HTTPClient *http.Client
		stdout     io.Writer
		stderr     io.Writer
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config config.Provider
		// Checker replaces the configured checker command.
		Checker compat.Checker
		// HTTPClient is used for registry requests.
		HTTPClient *http.Client
		Stdout     io.Writer
		Stderr     io.Writer
	}

	// runOptions selects the stages a command runs.
	runOptions struct {
		skipRegistry bool
		skipCompat   bool
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	return &App{
		Config:     deps.Config,
		Checker:    deps.Checker,
		HTTPClient: deps.HTTPClient,
		stdout:     deps.Stdout,
		stderr:     deps.Stderr,
	}
}

// loadConfig loads configuration and installs the logger it asks for.
func (a *App) loadConfig(ctx context.Context, flags *rootFlagValues) (*config.Config, error) {
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: flags.configPath})
	if err != nil {
		return nil, err
	}
	if flags.verbose {
		cfg.UI.Verbose = true
	}
	if flags.logLevel != "" {
		cfg.LogLevel = config.LogLevel(flags.logLevel)
		if ok, errs := cfg.LogLevel.IsValid(); !ok {
			return nil, errs[0]
		}
	}
	setupLogging(a.stderr, cfg)
	slog.Debug("configuration loaded", "source", cfg.Source())
	return cfg, nil
}

// setupLogging installs a charmbracelet/log handler as the slog default.
// Verbose mode always logs at debug level.
func setupLogging(w io.Writer, cfg *config.Config) {
	level, err := log.ParseLevel(string(cfg.LogLevel))
	if err != nil {
		level = log.InfoLevel
	}
	if cfg.UI.Verbose {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(w, log.Options{
		Prefix: config.AppName,
		Level:  level,
	})
	switch cfg.UI.ColorScheme {
	case config.ColorSchemeDark:
		lipgloss.SetHasDarkBackground(true)
	case config.ColorSchemeLight:
		lipgloss.SetHasDarkBackground(false)
	}
	slog.SetDefault(slog.New(logger))
}

// issueStyle returns the glamour style matching the configured scheme.
func issueStyle(cfg *config.Config) string {
	if cfg != nil {
		switch cfg.UI.ColorScheme {
		case config.ColorSchemeDark:
			return "dark"
		case config.ColorSchemeLight:
			return "light"
		}
	}
	if lipgloss.HasDarkBackground() {
		return "dark"
	}
	return "light"
}

func (a *App) registryClient(cfg *config.Config) *registry.Client {
	opts := []registry.ClientOption{
		registry.WithBaseURL(cfg.RegistryURL),
		registry.WithTimeout(cfg.RegistryTimeout),
		registry.WithUserAgent(config.AppName + "/" + Version),
	}
	if a.HTTPClient != nil {
		opts = append(opts, registry.WithHTTPClient(a.HTTPClient))
	}
	return registry.NewClient(opts...)
}

// newRunner builds a package runner from configuration. Shared inputs, the
// exemption list and the rule config, are read once here.
func (a *App) newRunner(cfg *config.Config, opts runOptions) (*checks.Runner, error) {
	runner := &checks.Runner{
		TypeScriptVersions: cfg.TypeScriptVersions,
		CheckerTimeout:     cfg.Checker.Timeout,
	}
	if opts.skipRegistry {
		return runner, nil
	}

	exemptions, err := exemption.Load(cfg.ExemptionsPath)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("load exemption list").
			WithResource(cfg.ExemptionsPath).
			WithSuggestion("Set 'exemptions_path' to a readable file, or leave it unset").
			WithIssue(issue.ExemptionListUnreadableId).
			Wrap(err).
			BuildError()
	}
	runner.Reconciler = checks.NewReconciler(a.registryClient(cfg), exemptions)
	if opts.skipCompat {
		// Nothing consumes the implementation package without the compat stage.
		runner.Reconciler.Fetcher = nil
		return runner, nil
	}

	checker := a.Checker
	if checker == nil {
		execChecker := &compat.ExecChecker{Command: cfg.Checker.Command}
		if _, err := execChecker.Args(compat.TarballPlaceholder); err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("parse checker command").
				WithResource(cfg.Checker.Command).
				WithSuggestion("Set 'checker.command' to a command line such as \"" + config.DefaultCheckerCommand + "\"").
				WithIssue(issue.CheckerCommandInvalidId).
				Wrap(err).
				BuildError()
		}
		checker = execChecker
	}
	runner.Checker = checker

	rules, err := loadRules(cfg.Checker.RulesPath)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("load checker rules").
			WithResource(cfg.Checker.RulesPath).
			WithSuggestion(`The file must hold {"failingPackages": [...], "ignoreRules": [...]}`).
			WithIssue(issue.RulesConfigInvalidId).
			Wrap(err).
			BuildError()
	}
	runner.Rules = rules
	return runner, nil
}

// loadRules reads the checker rule config. A missing file at the default
// location means no rules; a configured file must exist.
func loadRules(path string) (*compat.Rules, error) {
	rules, err := compat.LoadRules(path)
	if err != nil && path == compat.DefaultRulesFile && errors.Is(err, fs.ErrNotExist) {
		slog.Debug("checker rule config not found, using empty rules", "path", path)
		return &compat.Rules{}, nil
	}
	return rules, err
}
