// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/dtcheck/dtcheck/internal/config"
)

// newConfigCommand creates the `dtcheck config` command tree.
func newConfigCommand(app *App, flags *rootFlagValues) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage dtcheck configuration",
		Long: `Manage dtcheck configuration.

Configuration is read from the first of:
  - the file given with --config
  - config.cue or config.toml in the config directory
    (Linux: ~/.config/dtcheck, macOS: ~/Library/Application Support/dtcheck,
    Windows: %APPDATA%\dtcheck)
  - dtcheck.cue or dtcheck.toml in the working directory

DTCHECK_* environment variables override file values, for example
DTCHECK_CHECKER_TIMEOUT=5m.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFor(cmd, app, flags)
			if err != nil {
				return err
			}
			showConfig(app.stdout, cfg)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir, err := config.ConfigDir()
			if err != nil {
				return err
			}
			fmt.Fprintf(app.stdout, "Config directory: %s\n", cfgDir)
			for _, format := range config.Formats {
				path, pathErr := config.DefaultConfigPath(format)
				if pathErr != nil {
					return pathErr
				}
				fmt.Fprintf(app.stdout, "Config file (%s): %s\n", format, path)
			}
			return nil
		},
	})

	var initFormat string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, created, err := config.CreateDefaultConfig(initFormat)
			if err != nil {
				return fmt.Errorf("failed to create config: %w", err)
			}
			if !created {
				fmt.Fprintf(app.stdout, "%s Configuration already exists at %s\n", WarningStyle.Render(warnIcon), path)
				return nil
			}
			fmt.Fprintf(app.stdout, "%s Created default configuration at %s\n", SuccessStyle.Render(passIcon), path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&initFormat, "format", config.FormatCUE, "file format: cue or toml")
	cfgCmd.AddCommand(initCmd)

	var dumpFormat string
	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the effective configuration as a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFor(cmd, app, flags)
			if err != nil {
				return err
			}
			content, err := config.Generate(cfg, dumpFormat)
			if err != nil {
				return err
			}
			fmt.Fprint(app.stdout, content)
			return nil
		},
	}
	dumpCmd.Flags().StringVar(&dumpFormat, "format", config.FormatCUE, "file format: cue or toml")
	cfgCmd.AddCommand(dumpCmd)

	return cfgCmd
}

func showConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(w)

	source := SubtitleStyle.Render("(using defaults)")
	if cfg.Source() != "" {
		source = cfg.Source()
	}
	fmt.Fprintf(w, "%s: %s\n\n", CmdStyle.Render("Config file"), source)
	writeConfigMap(w, cfg.Map(), "")
}

// writeConfigMap prints keys in sorted order, nesting tables by indent.
func writeConfigMap(w io.Writer, m map[string]any, indent string) {
	for _, key := range slices.Sorted(maps.Keys(m)) {
		switch v := m[key].(type) {
		case map[string]any:
			fmt.Fprintf(w, "%s%s:\n", indent, CmdStyle.Render(key))
			writeConfigMap(w, v, indent+"  ")
		case []string:
			fmt.Fprintf(w, "%s%s:\n", indent, CmdStyle.Render(key))
			for _, item := range v {
				fmt.Fprintf(w, "%s  - %s\n", indent, SuccessStyle.Render(item))
			}
		default:
			fmt.Fprintf(w, "%s%s: %s\n", indent, CmdStyle.Render(key), SuccessStyle.Render(fmt.Sprint(v)))
		}
	}
}
