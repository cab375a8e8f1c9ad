// SPDX-License-Identifier: MPL-2.0

package checks

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dtcheck/dtcheck/internal/compat"
	"github.com/dtcheck/dtcheck/internal/exemption"
	"github.com/dtcheck/dtcheck/internal/manifest"
	"github.com/dtcheck/dtcheck/internal/registry"
	"github.com/dtcheck/dtcheck/pkg/bundle"
	"github.com/dtcheck/dtcheck/pkg/semver"
)

type (
	// Fetcher downloads the implementation package of a registry match.
	Fetcher interface {
		FetchPackage(ctx context.Context, m *registry.Match) (*bundle.Package, error)
	}

	// Reconciler compares declared versions with what the registry
	// publishes.
	Reconciler struct {
		Resolver   registry.Resolver
		Fetcher    Fetcher
		Exemptions *exemption.Set
	}

	// RegistryResult is the outcome of registry reconciliation.
	RegistryResult struct {
		Result
		// Match is the resolved registry package, nil when none was found.
		Match *registry.Match
		// Implementation is set only when the declared version matches a
		// published release and its tarball could be fetched.
		Implementation *bundle.Package
		// Mismatch is set when the closest published version lies outside
		// the declared major.minor, whether or not the package is exempt.
		Mismatch bool
	}
)

// MismatchSeverity routes a version mismatch: a warning for exempt
// packages, an error for everything else.
func MismatchSeverity(isExempt bool) compat.Severity {
	if isExempt {
		return compat.SeverityWarning
	}
	return compat.SeverityError
}

// NewReconciler returns a Reconciler that fetches implementation packages
// with the same client it resolves them with.
func NewReconciler(client *registry.Client, exemptions *exemption.Set) *Reconciler {
	return &Reconciler{Resolver: client, Fetcher: client, Exemptions: exemptions}
}

// CheckNpmVersion resolves the implementation package for h and reports
// naming and version conflicts. id is the package directory identifier
// looked up in the exemption set.
func (r *Reconciler) CheckNpmVersion(ctx context.Context, h *manifest.Header, id string) RegistryResult {
	var res RegistryResult
	typesVersion := h.TypesVersion()
	exempt := r.Exemptions.Contains(id)

	match := r.resolve(ctx, h)
	res.Match = match
	switch {
	case match != nil:
		switch h.NonNpm {
		case manifest.NonNpmTrue:
			res.errorf("Package %s is marked as non-npm, but %s exists on npm. "+
				"If these types are being added to DefinitelyTyped for the first time, please choose "+
				"a different name that does not conflict with an existing npm package.", h.Name, match.PackageName)
		case manifest.NonNpmFalse:
			if !semver.Satisfies(match.PackageVersion, typesVersion) {
				res.Mismatch = true
				msg := mismatchMessage(match, typesVersion, id)
				if MismatchSeverity(exempt) == compat.SeverityWarning {
					res.warnf("Ignoring npm version error because %s was failing when the check was added. "+
						"If you are making changes to this package, please fix this error:\n> %s", id, msg)
				} else {
					res.Errors = append(res.Errors, msg)
				}
				break
			}
			res.Implementation = r.fetch(ctx, match, &res.Result)
		case manifest.NonNpmConflict:
			// The collision is declared.
		}
	case h.NonNpm == manifest.NonNpmConflict:
		res.errorf("Package %s is marked as `\"nonNpm\": \"conflict\"`, but no conflicting package name was "+
			"found on npm. These non-npm types can be makred as `\"nonNpm\": true` instead.", h.Name)
	case h.NonNpm == manifest.NonNpmFalse:
		res.errorf("Package %s is not marked as non-npm, but no implementation package was found on npm. "+
			"If these types are not for an npm package, please add `\"nonNpm\": true` to the package.json. "+
			"Otherwise, ensure the name of this package matches the name of the npm package.", h.Name)
	}

	if !res.Mismatch && exempt {
		res.warnf("%s can be removed from %s.", id, r.exemptionFile())
	}
	return res
}

func (r *Reconciler) resolve(ctx context.Context, h *manifest.Header) *registry.Match {
	if r.Resolver == nil {
		return nil
	}
	match, err := r.Resolver.ResolveImplementation(ctx, h.Name, h.VersionCeiling())
	switch {
	case errors.Is(err, registry.ErrNotFound):
		slog.Debug("no implementation package on the registry", "package", h.Name)
		return nil
	case err != nil:
		// Registry flakiness must never block a package.
		slog.Debug("registry lookup failed, treating as not found", "package", h.Name, "error", err)
		return nil
	}
	return match
}

func (r *Reconciler) fetch(ctx context.Context, match *registry.Match, res *Result) *bundle.Package {
	if r.Fetcher == nil {
		return nil
	}
	pkg, err := r.Fetcher.FetchPackage(ctx, match)
	if err != nil {
		slog.Debug("implementation package download failed", "package", match.ID(), "error", err)
		res.warnf("Could not download %s from npm, skipping the type-correctness check: %v", match.ID(), err)
		return nil
	}
	return pkg
}

func (r *Reconciler) exemptionFile() string {
	if p := r.Exemptions.Path(); p != "" {
		return p
	}
	return exemption.DefaultFileName
}

func mismatchMessage(m *registry.Match, typesVersion, id string) string {
	name := m.PackageName
	return "Cannot find a version of " + name + " on npm that matches the types version " + typesVersion + ". " +
		"The closest match found was " + m.ID() + ". " +
		"If these types are for the existing npm package " + name + ", change the " + id + "/package.json " +
		"major and minor version to match an existing version of the npm package. If these types are unrelated to " +
		"the npm package " + name + ", add `\"nonNpm\": true` to the package.json and choose a different name " +
		"that does not conflict with an existing npm package."
}
