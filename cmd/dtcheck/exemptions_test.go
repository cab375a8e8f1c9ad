// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtcheck/dtcheck/internal/config"
	"github.com/dtcheck/dtcheck/pkg/types"
)

func exemptionDeps(t *testing.T, content string) Dependencies {
	t.Helper()
	path := filepath.Join(t.TempDir(), "expected.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return Dependencies{Config: stubProvider{cfg: testConfig(func(cfg *config.Config) {
		cfg.ExemptionsPath = path
	})}}
}

func TestExemptionsCommand_List(t *testing.T) {
	t.Parallel()

	out, err := execute(t, exemptionDeps(t, "# npm mismatches\nleft-pad\nreact@v16\n"), "exemptions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "LINE")
	assert.Contains(t, out, "left-pad")
	assert.Contains(t, out, "react@v16")

	out, err = execute(t, Dependencies{}, "exemptions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "(none)")
}

func TestExemptionsCommand_Check(t *testing.T) {
	t.Parallel()

	out, err := execute(t, exemptionDeps(t, "left-pad\nreact@v16\n"),
		"exemptions", "check", "types/left-pad", "types/react/v16", "types/react")
	require.NoError(t, err)
	assert.Contains(t, out, "left-pad is exempt")
	assert.Contains(t, out, "react@v16 is exempt")
	assert.Contains(t, out, "react is not exempt")
}

func TestExemptionsCommand_Unreadable(t *testing.T) {
	t.Parallel()

	// A directory cannot be read as a list.
	deps := Dependencies{Config: stubProvider{cfg: testConfig(func(cfg *config.Config) {
		cfg.ExemptionsPath = t.TempDir()
	})}}
	_, err := execute(t, deps, "exemptions", "list")
	requireExitCode(t, err, types.ExitUsage)
}
