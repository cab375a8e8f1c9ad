// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/dtcheck/dtcheck/internal/compat"
	"github.com/dtcheck/dtcheck/internal/config"
	"github.com/dtcheck/dtcheck/internal/issue"
	"github.com/dtcheck/dtcheck/internal/manifest"
	"github.com/dtcheck/dtcheck/internal/pkgdir"
	"github.com/dtcheck/dtcheck/internal/registry"
	"github.com/dtcheck/dtcheck/internal/tsconfig"
)

func TestIssueFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   error
		want  issue.Id
		found bool
	}{
		{"nil", nil, 0, false},
		{"unknown", errors.New("boom"), 0, false},
		{"permission", fmt.Errorf("open: %w", fs.ErrPermission), issue.PermissionDeniedId, true},
		{"not a directory", &pkgdir.NotDirectoryError{Path: "types/nope"}, issue.PackageDirNotFoundId, true},
		{"missing manifest", &manifest.ManifestError{Dir: "x", Err: manifest.ErrMissingManifest}, issue.ManifestMissingId, true},
		{"malformed manifest", &manifest.ManifestError{Dir: "x", Err: manifest.ErrMalformedManifest}, issue.ManifestMalformedId, true},
		{"missing tsconfig", fmt.Errorf("x: %w", tsconfig.ErrMissingConfig), issue.TSConfigMissingId, true},
		{"strict conflict", fmt.Errorf("x: %w", tsconfig.ErrStrictConflict), issue.StrictConflictId, true},
		{"rules", fmt.Errorf("%w: attw.json", compat.ErrRules), issue.RulesConfigInvalidId, true},
		{"checker command", compat.ErrCheckerCommand, issue.CheckerCommandInvalidId, true},
		{"bundle", &compat.BundleError{DirName: "left-pad", Err: errors.New("x")}, issue.TarballFailedId, true},
		{"config", &config.InvalidConfigError{}, issue.ConfigLoadFailedId, true},
		{
			"explicit issue wins over the cause",
			issue.NewErrorContext().WithOperation("load exemption list").
				WithIssue(issue.ExemptionListUnreadableId).Wrap(fs.ErrPermission).BuildError(),
			issue.ExemptionListUnreadableId, true,
		},
		{
			"actionable without issue falls through",
			issue.NewErrorContext().WithOperation("read").Wrap(fs.ErrPermission).BuildError(),
			issue.PermissionDeniedId, true,
		},
		{"registry", fmt.Errorf("fetching: %w", &registry.HTTPError{URL: "u", StatusCode: 500}), issue.RegistryUnreachableId, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, found := issueFor(tt.err)
			if found != tt.found || got != tt.want {
				t.Errorf("issueFor(%v) = (%d, %v), want (%d, %v)", tt.err, got, found, tt.want, tt.found)
			}
		})
	}
}

func TestFormatErrorForDisplay(t *testing.T) {
	t.Parallel()

	plain := errors.New("plain failure")
	if got := formatErrorForDisplay(plain, false); got != "plain failure" {
		t.Errorf("formatErrorForDisplay(plain) = %q", got)
	}

	actionable := issue.NewErrorContext().
		WithOperation("load checker rules").
		WithResource("attw.json").
		Wrap(plain).
		BuildError()
	got := formatErrorForDisplay(actionable, false)
	if got == "plain failure" {
		t.Errorf("actionable error should carry its operation, got %q", got)
	}
}
