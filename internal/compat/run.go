// SPDX-License-Identifier: MPL-2.0

package compat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/dtcheck/dtcheck/pkg/bundle"
)

// ErrNoTypes is the tooling error for a report that found no declarations
// in the merged package.
var ErrNoTypes = errors.New("no types found in synthesized attw package")

type (
	// Input describes one declaration package to check.
	Input struct {
		// DirName is the package's name in the rule config, "react" or
		// "react/v16".
		DirName string
		// DirPath is the package directory.
		DirPath string
		// Implementation is the npm package the declarations describe.
		Implementation *bundle.Package
		// Rules holds failingPackages and ignoreRules. ExpectError is
		// derived from it when RulesPath is empty.
		Rules *Rules
		// RulesPath is read when Rules is nil.
		RulesPath string
		// ExpectError marks the package as expected to fail. It is
		// combined with Rules.FailingPackages.
		ExpectError bool
		// Timeout bounds the checker. Zero means no limit.
		Timeout time.Duration
	}

	// Outcome is a classified checker result.
	Outcome struct {
		Status Status
		Output string
	}

	// Result is the warnings and errors of a type-correctness check.
	Result struct {
		Warnings []string
		Errors   []string
	}

	// BundleError is the fatal error for a package directory that cannot
	// be packed or merged.
	BundleError struct {
		DirName string
		Err     error
	}
)

func (e *BundleError) Error() string {
	return fmt.Sprintf("Error creating tarball for %s: %v", e.DirName, e.Err)
}

func (e *BundleError) Unwrap() error { return e.Err }

// Run packs the declaration package, merges it into the implementation,
// runs the checker and routes the outcome. Only failures to build the
// bundle or read the rule config are returned as errors; anything that
// goes wrong inside the checker becomes StatusError.
func Run(ctx context.Context, checker Checker, in Input) (Result, error) {
	rules := in.Rules
	if rules == nil {
		loaded, err := LoadRules(in.RulesPath)
		if err != nil {
			return Result{}, err
		}
		rules = loaded
	}
	expectError := in.ExpectError || rules.ExpectError(in.DirName)

	merged, err := buildBundle(in)
	if err != nil {
		return Result{}, err
	}

	outcome := Evaluate(ctx, checker, merged, rules.IgnoreRules, in.Timeout)
	slog.Debug("type-correctness outcome", "package", in.DirName, "status", outcome.Status, "expectError", expectError)
	return Classify(in.DirName, outcome, expectError), nil
}

// Evaluate runs the checker and classifies what it returned. Panics,
// errors, timeouts and reports without types are StatusError.
func Evaluate(ctx context.Context, checker Checker, pkg *bundle.Package, ignoreRules []string, timeout time.Duration) (outcome Outcome) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			outcome = Outcome{Status: StatusError, Output: fmt.Sprintf("%v\n%s", r, debug.Stack())}
		}
	}()

	report, err := checker.Check(ctx, pkg)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("checker timed out after %s: %w", timeout, err)
		}
		return Outcome{Status: StatusError, Output: err.Error()}
	}
	if report == nil || !report.Types {
		return Outcome{Status: StatusError, Output: ErrNoTypes.Error()}
	}

	output := Render(report, ignoreRules)
	if ExitCode(report, ignoreRules) == 0 {
		return Outcome{Status: StatusPass, Output: output}
	}
	return Outcome{Status: StatusFail, Output: output}
}

// Classify turns an outcome into messages according to Route.
func Classify(dirName string, o Outcome, expectError bool) Result {
	var res Result
	switch Route(o.Status, expectError) {
	case SeverityNone:
	case SeverityWarning:
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"Ignoring attw failure because %q is listed in 'failingPackages'.\n\n@arethetypeswrong/cli\n%s", dirName, o.Output))
	case SeverityError:
		if o.Status == StatusPass {
			res.Errors = append(res.Errors, fmt.Sprintf(
				"attw passed: remove %q from 'failingPackages' in attw.json\n\n%s", dirName, o.Output))
		} else {
			res.Errors = append(res.Errors, "!@arethetypeswrong/cli\n"+o.Output)
		}
	}
	return res
}

func buildBundle(in Input) (*bundle.Package, error) {
	if in.Implementation == nil {
		return nil, &BundleError{DirName: in.DirName, Err: errors.New("no implementation package")}
	}
	tgz, err := bundle.CreateTarball(in.DirPath)
	if err != nil {
		return nil, &BundleError{DirName: in.DirName, Err: err}
	}
	types, err := bundle.FromTarball(bytes.NewReader(tgz))
	if err != nil {
		return nil, &BundleError{DirName: in.DirName, Err: err}
	}
	merged, err := in.Implementation.MergedWithTypes(types)
	if err != nil {
		return nil, &BundleError{DirName: in.DirName, Err: err}
	}
	return merged, nil
}
