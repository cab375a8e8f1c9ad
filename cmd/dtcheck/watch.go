// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dtcheck/dtcheck/internal/pkgdir"
	"github.com/dtcheck/dtcheck/internal/watch"
	"github.com/dtcheck/dtcheck/pkg/types"
)

func newWatchCommand(app *App, flags *rootFlagValues) *cobra.Command {
	var (
		opts  runOptions
		clearScreen bool
	)
	watchCmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Re-check packages whenever their files change",
		Long: `Check the packages below a directory once, then re-check each package
whose files change. Changes are grouped by 'watch.debounce' and filtered
by 'watch.patterns'. Press Ctrl+C to stop.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFor(cmd, app, flags)
			if err != nil {
				return err
			}
			runner, err := app.newRunner(cfg, opts)
			if err != nil {
				printIssue(app.stderr, err, cfg)
				return &ExitError{Code: types.ExitUsage, Err: err}
			}

			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			dirs, err := discoverPackages([]string{root})
			if err != nil {
				printIssue(app.stderr, err, cfg)
				return &ExitError{Code: types.ExitUsage, Err: err}
			}

			run := func(ctx context.Context, dirs []pkgdir.Dir) error {
				if clearScreen {
					fmt.Fprint(app.stdout, "\033[2J\033[H")
				}
				renderText(app.stdout, app.stderr, checkPackages(ctx, runner, dirs, cfg.Concurrency), cfg)
				return nil
			}

			w, err := watch.New(watch.Config{
				Root:     root,
				Patterns: cfg.Watch.Patterns,
				Debounce: cfg.Watch.Debounce,
				OnChange: run,
				Logger:   slog.Default(),
			})
			if err != nil {
				return &ExitError{Code: types.ExitUsage, Err: err}
			}
			if err := run(cmd.Context(), dirs); err != nil {
				return err
			}
			return w.Run(cmd.Context())
		},
	}
	watchCmd.Flags().BoolVar(&opts.skipRegistry, "skip-registry", false, "skip the npm version and type-correctness checks")
	watchCmd.Flags().BoolVar(&opts.skipCompat, "skip-compat", false, "skip the type-correctness check")
	watchCmd.Flags().BoolVar(&clearScreen, "clear", false, "clear the screen before each run")
	return watchCmd
}
