// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for dtcheck.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/dtcheck/dtcheck/internal/config"
	"github.com/dtcheck/dtcheck/internal/issue"
	"github.com/dtcheck/dtcheck/pkg/types"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// rootFlagValues holds the persistent flags shared by every command.
type rootFlagValues struct {
	configPath string
	verbose    bool
	logLevel   string
}

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	flags := &rootFlagValues{}
	rootCmd := &cobra.Command{
		Use:   "dtcheck",
		Short: "Check declaration packages against repository policy and npm",
		Long: TitleStyle.Render("dtcheck") + SubtitleStyle.Render(" - declaration package conformance checker") + `

dtcheck verifies that a declaration package directory follows the
repository's build configuration and manifest policy, that its declared
version matches a published npm release, and that the declarations agree
with the implementation they describe.

` + SubtitleStyle.Render("Examples:") + `
  dtcheck check types/left-pad      Run every check on one package
  dtcheck check types               Check every package below types/
  dtcheck tsconfig types/react/v16  Only check tsconfig.json
  dtcheck resolve @types/react 16.8 Show the npm release a package maps to
  dtcheck watch types/left-pad      Re-check on every change`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/dtcheck/config.cue)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(
		newCheckCommand(app, flags),
		newTSConfigCommand(app, flags),
		newManifestCommand(app, flags),
		newResolveCommand(app, flags),
		newExemptionsCommand(app, flags),
		newWatchCommand(app, flags),
		newConfigCommand(app, flags),
	)
	return rootCmd
}

// getVersionString returns the version for --version. ldflags win, then
// module build info from "go install".
func getVersionString() string {
	if Version != "dev" {
		return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev (built from source)"
}

// Execute runs the CLI and exits with the command's exit code.
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.Code))
		}
		os.Exit(1)
	}
}

// configFor loads configuration for a command, printing the matching
// issue page in verbose mode when loading fails.
func configFor(cmd *cobra.Command, app *App, flags *rootFlagValues) (*config.Config, error) {
	cfg, err := app.loadConfig(cmd.Context(), flags)
	if err != nil {
		if flags.verbose {
			if rendered, renderErr := issue.Get(issue.ConfigLoadFailedId).Render(issueStyle(nil)); renderErr == nil {
				fmt.Fprint(app.stderr, rendered)
			}
		}
		return nil, &ExitError{Code: types.ExitUsage, Err: err}
	}
	return cfg, nil
}
