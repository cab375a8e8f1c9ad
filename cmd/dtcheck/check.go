// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/dtcheck/dtcheck/internal/checks"
	"github.com/dtcheck/dtcheck/internal/config"
	"github.com/dtcheck/dtcheck/internal/manifest"
	"github.com/dtcheck/dtcheck/internal/pkgdir"
	"github.com/dtcheck/dtcheck/internal/tsconfig"
	"github.com/dtcheck/dtcheck/pkg/types"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

var outputFormats = []string{formatText, formatJSON, formatYAML}

type (
	checkFlagValues struct {
		format       string
		skipRegistry bool
		skipCompat   bool
		concurrency  int
	}

	// packageView is the machine-readable form of a checks.Report.
	packageView struct {
		Package        string   `json:"package" yaml:"package"`
		Path           string   `json:"path" yaml:"path"`
		Implementation string   `json:"implementation,omitempty" yaml:"implementation,omitempty"`
		Warnings       []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
		Errors         []string `json:"errors,omitempty" yaml:"errors,omitempty"`
		Fatal          string   `json:"fatal,omitempty" yaml:"fatal,omitempty"`
	}
)

func newCheckCommand(app *App, flags *rootFlagValues) *cobra.Command {
	cf := &checkFlagValues{}
	checkCmd := &cobra.Command{
		Use:   "check [dir...]",
		Short: "Run every check on declaration packages",
		Long: `Run the build configuration, manifest, npm version and type-correctness
checks on each package directory.

A directory that holds package.json or tsconfig.json is checked as one
package, together with its version directories (v16, v18.4). Any other
directory is searched one level deep for packages. The current directory
is used when no directory is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, app, flags, cf, args)
		},
	}

	checkCmd.Flags().StringVarP(&cf.format, "format", "f", formatText, "output format: text, json or yaml")
	checkCmd.Flags().BoolVar(&cf.skipRegistry, "skip-registry", false, "skip the npm version and type-correctness checks")
	checkCmd.Flags().BoolVar(&cf.skipCompat, "skip-compat", false, "skip the type-correctness check")
	checkCmd.Flags().IntVarP(&cf.concurrency, "concurrency", "j", 0, "packages checked at once (default from config)")
	return checkCmd
}

func runCheck(cmd *cobra.Command, app *App, flags *rootFlagValues, cf *checkFlagValues, args []string) error {
	if err := validateFormat(cf.format); err != nil {
		return err
	}
	cfg, err := configFor(cmd, app, flags)
	if err != nil {
		return err
	}
	runner, err := app.newRunner(cfg, runOptions{skipRegistry: cf.skipRegistry, skipCompat: cf.skipCompat})
	if err != nil {
		printIssue(app.stderr, err, cfg)
		return &ExitError{Code: types.ExitUsage, Err: err}
	}

	dirs, err := discoverPackages(args)
	if err != nil {
		printIssue(app.stderr, err, cfg)
		return &ExitError{Code: types.ExitUsage, Err: err}
	}

	limit := cf.concurrency
	if limit <= 0 {
		limit = cfg.Concurrency
	}
	reports := checkPackages(cmd.Context(), runner, dirs, limit)

	if err := writeReports(app.stdout, app.stderr, cf.format, reports, cfg); err != nil {
		return err
	}
	return exitForReports(reports)
}

func validateFormat(format string) error {
	if slices.Contains(outputFormats, format) {
		return nil
	}
	return &ExitError{Code: types.ExitUsage, Err: fmt.Errorf("unknown format %q: must be one of %s", format, strings.Join(outputFormats, ", "))}
}

// checkPackages checks dirs with at most limit packages in flight. Reports
// keep the order of dirs.
func checkPackages(ctx context.Context, runner *checks.Runner, dirs []pkgdir.Dir, limit int) []*checks.Report {
	reports := make([]*checks.Report, len(dirs))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, dir := range dirs {
		g.Go(func() error {
			reports[i] = runner.CheckDir(gctx, dir)
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

// discoverPackages expands command-line paths into package directories.
func discoverPackages(paths []string) ([]pkgdir.Dir, error) {
	if len(paths) == 0 {
		paths = []string{"."}
	}
	var (
		dirs []pkgdir.Dir
		seen = make(map[string]bool)
	)
	add := func(d pkgdir.Dir) {
		if !seen[d.Path] {
			seen[d.Path] = true
			dirs = append(dirs, d)
		}
	}

	for _, p := range paths {
		root, err := pkgdir.Resolve(p)
		if err != nil {
			return nil, err
		}
		if isPackageDir(root.Path) {
			add(root)
			for _, v := range versionDirs(root.Path) {
				add(v)
			}
			continue
		}

		entries, err := os.ReadDir(root.Path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		found := false
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			child := filepath.Join(root.Path, e.Name())
			if !isPackageDir(child) {
				continue
			}
			found = true
			add(pkgdir.FromPath(child))
			for _, v := range versionDirs(child) {
				add(v)
			}
		}
		// A directory without packages is checked as one, so its missing
		// files are reported.
		if !found {
			add(root)
		}
	}
	return dirs, nil
}

func isPackageDir(dir string) bool {
	for _, name := range []string{manifest.FileName, tsconfig.FileName} {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

func versionDirs(dir string) []pkgdir.Dir {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []pkgdir.Dir
	for _, e := range entries {
		if _, ok := pkgdir.ParseVersion(e.Name()); ok && e.IsDir() {
			out = append(out, pkgdir.FromPath(filepath.Join(dir, e.Name())))
		}
	}
	return out
}

func toView(rep *checks.Report) packageView {
	v := packageView{
		Package:        rep.Package,
		Path:           rep.Path,
		Implementation: rep.Implementation,
		Warnings:       rep.Warnings,
		Errors:         rep.Errors,
	}
	if rep.Fatal != nil {
		v.Fatal = rep.Fatal.Err.Error()
	}
	return v
}

func writeReports(stdout, stderr io.Writer, format string, reports []*checks.Report, cfg *config.Config) error {
	views := make([]packageView, 0, len(reports))
	for _, rep := range reports {
		views = append(views, toView(rep))
	}

	switch format {
	case formatJSON:
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(views); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
	case formatYAML:
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
	default:
		renderText(stdout, stderr, reports, cfg)
	}
	return nil
}

// renderText writes a styled verdict per package followed by a summary.
func renderText(stdout, stderr io.Writer, reports []*checks.Report, cfg *config.Config) {
	var passed, warned int
	for _, rep := range reports {
		icon := SuccessStyle.Render(passIcon)
		if rep.Failed() {
			icon = ErrorStyle.Render(failIcon)
		} else {
			passed++
		}
		if len(rep.Warnings) > 0 {
			warned++
		}

		header := icon + " " + packageHeaderStyle.Render(rep.Package)
		if rep.Implementation != "" && cfg != nil && cfg.UI.Verbose {
			header += " " + VerboseStyle.Render("("+rep.Implementation+")")
		}
		fmt.Fprintln(stdout, header)

		for _, msg := range rep.Errors {
			fmt.Fprintln(stdout, messageStyle.Render(ErrorStyle.Render("error: ")+msg))
		}
		for _, msg := range rep.Warnings {
			fmt.Fprintln(stdout, messageStyle.Render(WarningStyle.Render("warning: ")+msg))
		}
		if rep.Fatal != nil {
			verbose := cfg != nil && cfg.UI.Verbose
			fmt.Fprintln(stdout, messageStyle.Render(ErrorStyle.Render("fatal: ")+formatErrorForDisplay(rep.Fatal.Err, verbose)))
			printIssue(stderr, rep.Fatal.Err, cfg)
		}
	}

	summary := fmt.Sprintf("%d checked, %d passed, %d failed", len(reports), passed, len(reports)-passed)
	if warned > 0 {
		summary += fmt.Sprintf(", %d with warnings", warned)
	}
	fmt.Fprintln(stdout, summaryStyle.Render(summary))
}

func exitForReports(reports []*checks.Report) error {
	failed := 0
	for _, rep := range reports {
		if rep.Failed() {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	return &ExitError{Code: types.ExitFailed, Err: fmt.Errorf("%d of %d packages failed", failed, len(reports))}
}
