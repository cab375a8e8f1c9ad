// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dtcheck/dtcheck/internal/checks"
	"github.com/dtcheck/dtcheck/internal/config"
	"github.com/dtcheck/dtcheck/internal/manifest"
	"github.com/dtcheck/dtcheck/internal/pkgdir"
	"github.com/dtcheck/dtcheck/internal/tsconfig"
)

// policyCheck runs one offline policy stage on a package directory.
type policyCheck func(cfg *config.Config, dir pkgdir.Dir) ([]string, error)

func newTSConfigCommand(app *App, flags *rootFlagValues) *cobra.Command {
	return newPolicyCommand(app, flags, "tsconfig <dir...>",
		"Check tsconfig.json against the build configuration policy",
		func(_ *config.Config, dir pkgdir.Dir) ([]string, error) {
			return tsconfig.CheckDir(dir.Path)
		})
}

func newManifestCommand(app *App, flags *rootFlagValues) *cobra.Command {
	return newPolicyCommand(app, flags, "manifest <dir...>",
		"Check package.json against the manifest policy",
		func(cfg *config.Config, dir pkgdir.Dir) ([]string, error) {
			_, violations, err := manifest.Check(dir.Path, cfg.TypeScriptVersions)
			return violations, err
		})
}

func newPolicyCommand(app *App, flags *rootFlagValues, use, short string, check policyCheck) *cobra.Command {
	var format string
	policyCmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			cfg, err := configFor(cmd, app, flags)
			if err != nil {
				return err
			}
			reports := make([]*checks.Report, 0, len(args))
			for _, arg := range args {
				reports = append(reports, runPolicy(cfg, arg, check))
			}
			if err := writeReports(app.stdout, app.stderr, format, reports, cfg); err != nil {
				return err
			}
			return exitForReports(reports)
		},
	}
	policyCmd.Flags().StringVarP(&format, "format", "f", formatText, "output format: text, json or yaml")
	return policyCmd
}

func runPolicy(cfg *config.Config, path string, check policyCheck) *checks.Report {
	dir, err := pkgdir.Resolve(path)
	if err != nil {
		return &checks.Report{Package: path, Path: path, Fatal: &checks.PackageError{Dir: path, Err: err}}
	}
	rep := &checks.Report{Package: dir.DisplayName(), Path: dir.Path}
	violations, err := check(cfg, dir)
	if err != nil {
		rep.Fatal = &checks.PackageError{Dir: dir.Path, Err: err}
		return rep
	}
	rep.Errors = violations
	return rep
}
