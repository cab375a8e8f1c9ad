// SPDX-License-Identifier: MPL-2.0

package compat

import "fmt"

const (
	// StatusPass means the checker found no unignored problems.
	StatusPass Status = iota + 1
	// StatusFail means the checker reported problems.
	StatusFail
	// StatusError means the checker could not produce a verdict.
	StatusError
)

const (
	// SeverityNone means the outcome is not reported.
	SeverityNone Severity = iota
	// SeverityWarning means the outcome is reported without failing the run.
	SeverityWarning
	// SeverityError means the outcome fails the package.
	SeverityError
)

type (
	// Status is the tri-state outcome of a type-correctness check.
	Status int

	// Severity is how an outcome is surfaced.
	Severity int
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusFail:
		return "fail"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Route maps an outcome to a severity. A package expected to fail that
// passes is an error, so stale entries leave the failing list; a tooling
// error on such a package is not reported at all.
//
//	status  expectError=true  expectError=false
//	pass    error             none
//	fail    warning           error
//	error   none              error
func Route(status Status, expectError bool) Severity {
	switch status {
	case StatusPass:
		if expectError {
			return SeverityError
		}
		return SeverityNone
	case StatusFail:
		if expectError {
			return SeverityWarning
		}
		return SeverityError
	case StatusError:
		if expectError {
			return SeverityNone
		}
		return SeverityError
	default:
		panic(fmt.Sprintf("compat: unhandled status %v", status))
	}
}
