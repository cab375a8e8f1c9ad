// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dtcheck/dtcheck/internal/registry"
	"github.com/dtcheck/dtcheck/pkg/types"
)

func newResolveCommand(app *App, flags *rootFlagValues) *cobra.Command {
	var fetch bool
	resolveCmd := &cobra.Command{
		Use:   "resolve <package> <version>",
		Short: "Show the npm release a declaration package describes",
		Long: `Resolve the implementation package for a declaration package.

<package> is the declaration package name or the name of the npm package
it describes. <version> is the declared "major.minor", which selects the highest
release up to major.minor.9999, or any npm range.`,
		Example: `  dtcheck resolve left-pad 1.3
  dtcheck resolve @babel/core 7.20 --fetch`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFor(cmd, app, flags)
			if err != nil {
				return err
			}

			name := typesName(args[0])
			if err := name.Validate(); err != nil {
				return &ExitError{Code: types.ExitUsage, Err: err}
			}
			versionRange := ceilingFor(args[1])

			client := app.registryClient(cfg)
			match, err := client.ResolveImplementation(cmd.Context(), name.String(), versionRange)
			if err != nil {
				printIssue(app.stderr, err, cfg)
				return &ExitError{Code: types.ExitFailed, Err: fmt.Errorf("resolving %s %s: %w", name, versionRange, err)}
			}
			if match == nil {
				fmt.Fprintf(app.stdout, "%s no npm release of %s matches %s\n", ErrorStyle.Render(failIcon), name, versionRange)
				return &ExitError{Code: types.ExitFailed, Err: registry.ErrNotFound}
			}

			fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render(passIcon), CmdStyle.Render(match.ID()))
			fmt.Fprintf(app.stdout, "  tarball:   %s\n", match.TarballURL)
			if match.Integrity != "" {
				fmt.Fprintf(app.stdout, "  integrity: %s\n", VerboseStyle.Render(match.Integrity))
			}
			if !fetch {
				return nil
			}

			pkg, err := client.FetchPackage(cmd.Context(), match)
			if err != nil {
				printIssue(app.stderr, err, cfg)
				return &ExitError{Code: types.ExitFailed, Err: err}
			}
			fmt.Fprintf(app.stdout, "  files:     %d\n", pkg.Len())
			return nil
		},
	}
	resolveCmd.Flags().BoolVar(&fetch, "fetch", false, "download the tarball and verify its integrity")
	return resolveCmd
}

// typesName maps an implementation name to its declaration package;
// "@types/..." names are kept.
func typesName(arg string) types.PackageName {
	name := types.PackageName(arg)
	if name.IsTypesPackage() {
		return name
	}
	return name.TypesPackage()
}

// ceilingFor turns "major.minor" into the range ceiling "major.minor.9999".
func ceilingFor(version string) string {
	if parts := strings.Split(version, "."); len(parts) == 2 && parts[0] != "" && parts[1] != "" && isDigits(parts[0]) && isDigits(parts[1]) {
		return version + ".9999"
	}
	return version
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
