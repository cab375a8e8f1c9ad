// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/dtcheck/dtcheck/pkg/types"
)

// ExitError carries a non-zero exit code out of a RunE handler.
type ExitError struct {
	Code types.ExitCode
	Err  error
}

// Error returns the wrapped error's message, or the bare exit status when
// there is none.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *ExitError) Unwrap() error {
	return e.Err
}
