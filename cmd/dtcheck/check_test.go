// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dtcheck/dtcheck/internal/compat"
	"github.com/dtcheck/dtcheck/internal/config"
	"github.com/dtcheck/dtcheck/internal/pkgdir"
	"github.com/dtcheck/dtcheck/internal/testutil/typespkgtest"
	"github.com/dtcheck/dtcheck/pkg/bundle"
	"github.com/dtcheck/dtcheck/pkg/types"
)

type stubProvider struct {
	cfg *config.Config
}

func (p stubProvider) Load(context.Context, config.LoadOptions) (*config.Config, error) {
	cfg := *p.cfg
	return &cfg, nil
}

// testConfig returns defaults that never touch files next to the test.
func testConfig(mutate ...func(*config.Config)) *config.Config {
	cfg := config.DefaultConfig()
	cfg.ExemptionsPath = ""
	cfg.Checker.RulesPath = ""
	cfg.LogLevel = config.LogLevelError
	for _, m := range mutate {
		m(cfg)
	}
	return cfg
}

func execute(t *testing.T, deps Dependencies, args ...string) (stdout string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	deps.Stdout = &out
	deps.Stderr = &errOut
	if deps.Config == nil {
		deps.Config = stubProvider{cfg: testConfig()}
	}
	root := NewRootCommand(NewApp(deps))
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	err = root.ExecuteContext(context.Background())
	return out.String(), err
}

func requireExitCode(t *testing.T, err error, code types.ExitCode) {
	t.Helper()
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, code, exitErr.Code)
}

func TestDiscoverPackages(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	typespkgtest.Write(t, root, "left-pad")
	typespkgtest.Write(t, root, "react")
	typespkgtest.Write(t, root, "react", typespkgtest.WithVersionDir("v16"))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "scripts"), 0o755))
	empty := t.TempDir()

	names := func(dirs []pkgdir.Dir) []string {
		out := make([]string, 0, len(dirs))
		for _, d := range dirs {
			out = append(out, d.DisplayName())
		}
		return out
	}

	dirs, err := discoverPackages([]string{root})
	require.NoError(t, err)
	assert.Equal(t, []string{"left-pad", "react", "react/v16"}, names(dirs))

	dirs, err = discoverPackages([]string{filepath.Join(root, "react"), filepath.Join(root, "react", "v16")})
	require.NoError(t, err)
	assert.Equal(t, []string{"react", "react/v16"}, names(dirs), "version directories are deduplicated")

	dirs, err = discoverPackages([]string{empty})
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	assert.Equal(t, empty, dirs[0].Path)

	_, err = discoverPackages([]string{filepath.Join(root, "missing")})
	assert.ErrorIs(t, err, pkgdir.ErrNotDirectory)
}

func TestCheckCommand_Offline(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	clean := typespkgtest.Write(t, root, "left-pad")
	broken := typespkgtest.Write(t, root, "right-pad", typespkgtest.WithTSConfigField("include", []string{"*.ts"}))

	out, err := execute(t, Dependencies{}, "check", "--skip-registry", clean)
	require.NoError(t, err)
	assert.Contains(t, out, "left-pad")
	assert.Contains(t, out, "1 checked, 1 passed, 0 failed")

	out, err = execute(t, Dependencies{}, "check", "--skip-registry", root)
	requireExitCode(t, err, types.ExitFailed)
	assert.EqualError(t, err, "1 of 2 packages failed")
	assert.Contains(t, out, `Use "files" instead of "include".`)

	out, err = execute(t, Dependencies{}, "check", "--skip-registry", "--format", "json", broken)
	requireExitCode(t, err, types.ExitFailed)
	var views []packageView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "right-pad", views[0].Package)
	assert.Contains(t, views[0].Errors, `Use "files" instead of "include".`)
}

func TestCheckCommand_FatalAndFormats(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := typespkgtest.Write(t, root, "left-pad", typespkgtest.WithoutFile("package.json"))

	out, err := execute(t, Dependencies{}, "check", "--skip-registry", "--format", "yaml", dir)
	requireExitCode(t, err, types.ExitFailed)
	var views []packageView
	require.NoError(t, yaml.Unmarshal([]byte(out), &views))
	require.Len(t, views, 1)
	assert.Contains(t, views[0].Fatal, "missing 'package.json'")

	_, err = execute(t, Dependencies{}, "check", "--format", "xml", dir)
	requireExitCode(t, err, types.ExitUsage)
}

func TestCheckCommand_FullPipeline(t *testing.T) {
	t.Parallel()

	impl := bundle.New("left-pad", "1.0.3")
	require.NoError(t, impl.AddFile("package.json", []byte(`{"name":"left-pad","version":"1.0.3"}`)))
	require.NoError(t, impl.AddFile("index.js", []byte("module.exports = function () {};")))
	var tarball bytes.Buffer
	require.NoError(t, impl.WriteTarball(&tarball))

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	mux.HandleFunc("/left-pad", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name": "left-pad",
			"versions": map[string]any{
				"1.0.3": map[string]any{
					"version": "1.0.3",
					"dist": map[string]any{
						"tarball":   srv.URL + "/left-pad-1.0.3.tgz",
						"integrity": bundle.Integrity(tarball.Bytes()),
					},
				},
			},
		})
	})
	mux.HandleFunc("/left-pad-1.0.3.tgz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(tarball.Bytes())
	})

	var checked *bundle.Package
	checker := compat.CheckerFunc(func(_ context.Context, pkg *bundle.Package) (*compat.Report, error) {
		checked = pkg
		return &compat.Report{Types: true}, nil
	})
	cfg := testConfig(func(c *config.Config) { c.RegistryURL = srv.URL })

	dir := typespkgtest.Write(t, t.TempDir(), "left-pad")
	out, err := execute(t, Dependencies{Config: stubProvider{cfg: cfg}, Checker: checker}, "check", "--format", "json", dir)
	require.NoError(t, err)

	var views []packageView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "left-pad@1.0.3", views[0].Implementation)
	assert.Empty(t, views[0].Errors)

	require.NotNil(t, checked, "checker should receive the merged package")
	_, ok := checked.ReadFile("node_modules/@types/left-pad/index.d.ts")
	assert.True(t, ok)
}

func TestCheckCommand_SkipCompatDoesNotDownload(t *testing.T) {
	t.Parallel()

	var tarballHits atomic.Int32
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	mux.HandleFunc("/left-pad", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name": "left-pad",
			"versions": map[string]any{
				"1.0.3": map[string]any{
					"version": "1.0.3",
					"dist":    map[string]any{"tarball": srv.URL + "/left-pad-1.0.3.tgz"},
				},
			},
		})
	})
	mux.HandleFunc("/left-pad-1.0.3.tgz", func(w http.ResponseWriter, _ *http.Request) {
		tarballHits.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})

	checker := compat.CheckerFunc(func(context.Context, *bundle.Package) (*compat.Report, error) {
		t.Error("checker must not run with --skip-compat")
		return &compat.Report{}, nil
	})
	cfg := testConfig(func(c *config.Config) { c.RegistryURL = srv.URL })

	dir := typespkgtest.Write(t, t.TempDir(), "left-pad")
	out, err := execute(t, Dependencies{Config: stubProvider{cfg: cfg}, Checker: checker},
		"check", "--skip-compat", "--format", "json", dir)
	require.NoError(t, err)

	var views []packageView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "left-pad@1.0.3", views[0].Implementation)
	assert.Empty(t, views[0].Errors)
	for _, w := range views[0].Warnings {
		assert.NotContains(t, w, "Could not download")
	}
	assert.Zero(t, tarballHits.Load())
}
