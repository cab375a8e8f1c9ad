// SPDX-License-Identifier: MPL-2.0

package checks

import (
	"context"
	"log/slog"
	"time"

	"github.com/dtcheck/dtcheck/internal/compat"
	"github.com/dtcheck/dtcheck/internal/manifest"
	"github.com/dtcheck/dtcheck/internal/pkgdir"
	"github.com/dtcheck/dtcheck/internal/registry"
	"github.com/dtcheck/dtcheck/internal/tsconfig"
)

// Stage names used in logs and reports.
const (
	StageTSConfig = "tsconfig"
	StageManifest = "manifest"
	StageRegistry = "registry"
	StageCompat   = "compat"
)

type (
	// Runner checks declaration packages. A nil Reconciler skips the
	// registry stage and a nil Checker skips the type-correctness stage.
	Runner struct {
		Reconciler *Reconciler
		Checker    compat.Checker
		// Rules is the shared checker rule config. RulesPath is read for
		// every package when Rules is nil.
		Rules     *compat.Rules
		RulesPath string
		// TypeScriptVersions lists the versions "minimumTypeScriptVersion"
		// may name.
		TypeScriptVersions []string
		CheckerTimeout     time.Duration
	}

	// Report is the verdict for one package directory.
	Report struct {
		Package string `json:"package" yaml:"package"`
		Path    string `json:"path" yaml:"path"`
		Result  `yaml:",inline"`
		// Implementation is "name@version" of the resolved npm package.
		Implementation string `json:"implementation,omitempty" yaml:"implementation,omitempty"`
		// Fatal stopped the package early. Messages gathered before it
		// are kept.
		Fatal *PackageError `json:"-" yaml:"-"`
	}
)

// Failed reports whether the package has errors or a fatal error.
func (r *Report) Failed() bool {
	return r.Fatal != nil || r.HasErrors()
}

// Check runs every stage on the package at path.
func (r *Runner) Check(ctx context.Context, path string) *Report {
	dir, err := pkgdir.Resolve(path)
	if err != nil {
		return &Report{Package: path, Path: path, Fatal: &PackageError{Dir: path, Err: err}}
	}
	return r.CheckDir(ctx, dir)
}

// CheckDir runs every stage on a resolved package directory.
func (r *Runner) CheckDir(ctx context.Context, dir pkgdir.Dir) *Report {
	rep := &Report{Package: dir.DisplayName(), Path: dir.Path}
	logger := slog.With("package", rep.Package)
	fatal := func(stage string, err error) *Report {
		logger.Debug("package check aborted", "stage", stage, "error", err)
		rep.Fatal = &PackageError{Dir: dir.Path, Err: err}
		return rep
	}

	violations, err := tsconfig.CheckDir(dir.Path)
	if err != nil {
		return fatal(StageTSConfig, err)
	}
	rep.Errors = append(rep.Errors, violations...)

	header, violations, err := manifest.Check(dir.Path, r.TypeScriptVersions)
	if err != nil {
		return fatal(StageManifest, err)
	}
	rep.Errors = append(rep.Errors, violations...)
	if header == nil || r.Reconciler == nil {
		return rep
	}

	reg := r.Reconciler.CheckNpmVersion(ctx, header, dir.ID())
	rep.Merge(reg.Result)
	if reg.Implementation == nil || r.Checker == nil {
		return rep
	}
	rep.Implementation = implementationID(reg.Match)

	res, err := compat.Run(ctx, r.Checker, compat.Input{
		DirName:        dir.DisplayName(),
		DirPath:        dir.Path,
		Implementation: reg.Implementation,
		Rules:          r.Rules,
		RulesPath:      r.RulesPath,
		Timeout:        r.CheckerTimeout,
	})
	if err != nil {
		return fatal(StageCompat, err)
	}
	rep.Merge(Result{Warnings: res.Warnings, Errors: res.Errors})
	logger.Debug("package checked", "warnings", len(rep.Warnings), "errors", len(rep.Errors))
	return rep
}

func implementationID(m *registry.Match) string {
	if m == nil {
		return ""
	}
	return m.ID()
}
