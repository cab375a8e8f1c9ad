// SPDX-License-Identifier: MPL-2.0

package checks

import (
	"fmt"
)

type (
	// Result is the warnings and errors collected for a package.
	// Warnings never fail a run.
	Result struct {
		Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
		Errors   []string `json:"errors,omitempty" yaml:"errors,omitempty"`
	}

	// PackageError is a fatal error that stopped checking one package.
	PackageError struct {
		Dir string
		Err error
	}
)

func (e *PackageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Dir, e.Err)
}

func (e *PackageError) Unwrap() error { return e.Err }

// Merge appends the messages of other.
func (r *Result) Merge(other Result) {
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Errors = append(r.Errors, other.Errors...)
}

// HasErrors reports whether any error was recorded.
func (r Result) HasErrors() bool { return len(r.Errors) > 0 }

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Result) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}
