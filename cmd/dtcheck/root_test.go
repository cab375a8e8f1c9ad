// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"testing"

	"github.com/dtcheck/dtcheck/pkg/types"
)

func TestGetVersionString(t *testing.T) {
	// Not parallel: subtests mutate package-level Version/Commit/BuildDate vars.

	t.Run("ldflags version takes priority", func(t *testing.T) {
		origVersion, origCommit, origBuildDate := Version, Commit, BuildDate
		t.Cleanup(func() {
			Version, Commit, BuildDate = origVersion, origCommit, origBuildDate
		})

		Version = "v1.2.3"
		Commit = "abc1234"
		BuildDate = "2026-03-01T10:00:00Z"

		want := "v1.2.3 (commit: abc1234, built: 2026-03-01T10:00:00Z)"
		if got := getVersionString(); got != want {
			t.Errorf("getVersionString() = %q, want %q", got, want)
		}
	})

	t.Run("fallback to dev", func(t *testing.T) {
		origVersion := Version
		t.Cleanup(func() { Version = origVersion })

		// Test binaries report Main.Version "(devel)", so build info is skipped.
		Version = "dev"
		if got := getVersionString(); got != "dev (built from source)" {
			t.Errorf("getVersionString() = %q", got)
		}
	})
}

func TestNewRootCommand_Subcommands(t *testing.T) {
	t.Parallel()

	root := NewRootCommand(NewApp(Dependencies{}))
	for _, name := range []string{"check", "tsconfig", "manifest", "resolve", "exemptions", "watch", "config"} {
		if _, _, err := root.Find([]string{name}); err != nil {
			t.Errorf("subcommand %q not registered: %v", name, err)
		}
	}
	for _, flag := range []string{"config", "verbose", "log-level"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag --%s not registered", flag)
		}
	}
}

func TestExitError(t *testing.T) {
	t.Parallel()

	cause := errors.New("2 of 3 packages failed")
	err := &ExitError{Code: types.ExitFailed, Err: cause}
	if err.Error() != cause.Error() {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("ExitError should unwrap to its cause")
	}

	bare := &ExitError{Code: types.ExitUsage}
	if bare.Error() != "exit status 2" {
		t.Errorf("Error() = %q, want %q", bare.Error(), "exit status 2")
	}
}
