// SPDX-License-Identifier: MPL-2.0

package compat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"mvdan.cc/sh/v3/shell"

	"github.com/dtcheck/dtcheck/pkg/bundle"
)

// TarballPlaceholder is replaced with the bundle path in checker commands.
const TarballPlaceholder = "{tarball}"

// ErrCheckerCommand is returned for an empty or unparsable command line.
var ErrCheckerCommand = errors.New("invalid checker command")

type (
	// Checker inspects a merged package and reports type-correctness
	// problems. An error means no verdict could be reached.
	Checker interface {
		Check(ctx context.Context, pkg *bundle.Package) (*Report, error)
	}

	// CheckerFunc adapts a function to Checker.
	CheckerFunc func(ctx context.Context, pkg *bundle.Package) (*Report, error)

	// ExecChecker runs an external command on a tarball of the package and
	// reads a JSON report from its standard output. Nonzero exit codes are
	// expected when problems are found and only matter when no report was
	// printed.
	ExecChecker struct {
		// Command is a shell-style command line. "{tarball}" is replaced
		// with the bundle path, which is appended when absent.
		Command string
		// Dir is the working directory, the current one when empty.
		Dir string
	}

	// CommandError reports a checker process that printed no report.
	CommandError struct {
		Command string
		Stderr  string
		Err     error
	}
)

func (f CheckerFunc) Check(ctx context.Context, pkg *bundle.Package) (*Report, error) {
	return f(ctx, pkg)
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("checker command %q failed: %v", e.Command, e.Err)
	if e.Stderr != "" {
		msg += "\n" + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// Args splits the command line and substitutes the tarball path.
func (c *ExecChecker) Args(tarball string) ([]string, error) {
	fields, err := shell.Fields(c.Command, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCheckerCommand, err)
	}
	if len(fields) == 0 {
		return nil, ErrCheckerCommand
	}
	substituted := false
	for i, f := range fields {
		if strings.Contains(f, TarballPlaceholder) {
			fields[i] = strings.ReplaceAll(f, TarballPlaceholder, tarball)
			substituted = true
		}
	}
	if !substituted {
		fields = append(fields, tarball)
	}
	return fields, nil
}

// Check implements Checker.
func (c *ExecChecker) Check(ctx context.Context, pkg *bundle.Package) (*Report, error) {
	tmp, err := os.CreateTemp("", "dtcheck-*.tgz")
	if err != nil {
		return nil, fmt.Errorf("creating bundle file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	writeErr := pkg.WriteTarball(tmp)
	if closeErr := tmp.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		return nil, fmt.Errorf("writing bundle file: %w", writeErr)
	}

	args, err := c.Args(tmp.Name())
	if err != nil {
		return nil, err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = c.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("running type-correctness checker", "args", args)
	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("checker command %q: %w", c.Command, ctxErr)
	}

	report, parseErr := ParseReport(bytes.TrimSpace(stdout.Bytes()))
	if parseErr != nil {
		if runErr != nil {
			return nil, &CommandError{Command: c.Command, Stderr: strings.TrimSpace(stderr.String()), Err: runErr}
		}
		return nil, parseErr
	}
	return report, nil
}
