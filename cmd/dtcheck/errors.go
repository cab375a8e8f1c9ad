// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/dtcheck/dtcheck/internal/compat"
	"github.com/dtcheck/dtcheck/internal/config"
	"github.com/dtcheck/dtcheck/internal/issue"
	"github.com/dtcheck/dtcheck/internal/manifest"
	"github.com/dtcheck/dtcheck/internal/pkgdir"
	"github.com/dtcheck/dtcheck/internal/registry"
	"github.com/dtcheck/dtcheck/internal/tsconfig"
)

// issueFor maps an error to the catalog entry that explains it. The second
// result is false when no entry applies.
func issueFor(err error) (issue.Id, bool) {
	var (
		actionable *issue.ActionableError
		bundleErr  *compat.BundleError
		httpErr    *registry.HTTPError
	)
	switch {
	case err == nil:
		return 0, false
	case errors.As(err, &actionable) && actionable.Issue != 0:
		return actionable.Issue, true
	case errors.Is(err, fs.ErrPermission):
		return issue.PermissionDeniedId, true
	case errors.Is(err, pkgdir.ErrNotDirectory):
		return issue.PackageDirNotFoundId, true
	case errors.Is(err, manifest.ErrMissingManifest):
		return issue.ManifestMissingId, true
	case errors.Is(err, manifest.ErrMalformedManifest):
		return issue.ManifestMalformedId, true
	case errors.Is(err, tsconfig.ErrMissingConfig):
		return issue.TSConfigMissingId, true
	case errors.Is(err, tsconfig.ErrStrictConflict):
		return issue.StrictConflictId, true
	case errors.Is(err, compat.ErrRules):
		return issue.RulesConfigInvalidId, true
	case errors.Is(err, compat.ErrCheckerCommand):
		return issue.CheckerCommandInvalidId, true
	case errors.As(err, &bundleErr):
		return issue.TarballFailedId, true
	case errors.Is(err, config.ErrInvalidConfig), errors.Is(err, config.ErrInvalidField):
		return issue.ConfigLoadFailedId, true
	case errors.As(err, &httpErr):
		return issue.RegistryUnreachableId, true
	}
	return 0, false
}

// printIssue renders the catalog entry for err when verbose output is on.
func printIssue(w io.Writer, err error, cfg *config.Config) {
	if cfg == nil || !cfg.UI.Verbose {
		return
	}
	id, ok := issueFor(err)
	if !ok {
		return
	}
	rendered, renderErr := issue.Get(id).Render(issueStyle(cfg))
	if renderErr != nil {
		return
	}
	fmt.Fprint(w, rendered)
}

// formatErrorForDisplay uses the ActionableError layout when available and
// shows the full chain in verbose mode.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}
