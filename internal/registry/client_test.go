// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtcheck/dtcheck/pkg/bundle"
)

type fakeRegistry struct {
	t        *testing.T
	srv      *httptest.Server
	docs     map[string]map[string]any
	tarballs map[string][]byte
	hits     atomic.Int32
}

func newFakeRegistry(t *testing.T) *fakeRegistry {
	t.Helper()
	f := &fakeRegistry{t: t, docs: map[string]map[string]any{}, tarballs: map[string][]byte{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

// publish registers a package with the given versions. Each version gets a
// tarball containing a package.json and an index.js.
func (f *fakeRegistry) publish(name string, versions ...string) {
	f.t.Helper()
	entries := map[string]any{}
	for _, v := range versions {
		pkg := bundle.New(name, v)
		require.NoError(f.t, pkg.AddFile("package.json", []byte(`{"name":"`+name+`","version":"`+v+`"}`)))
		require.NoError(f.t, pkg.AddFile("index.js", []byte("module.exports = {};")))
		var buf bytes.Buffer
		require.NoError(f.t, pkg.WriteTarball(&buf))

		path := "/tarballs/" + name + "-" + v + ".tgz"
		f.tarballs[path] = buf.Bytes()
		entries[v] = map[string]any{
			"version": v,
			"dist": map[string]any{
				"tarball":   f.srv.URL + path,
				"integrity": bundle.Integrity(buf.Bytes()),
			},
		}
	}
	f.docs[name] = map[string]any{"name": name, "versions": entries}
}

func (f *fakeRegistry) serve(w http.ResponseWriter, r *http.Request) {
	if data, ok := f.tarballs[r.URL.Path]; ok {
		_, _ = w.Write(data)
		return
	}
	f.hits.Add(1)
	// The escaped scope separator arrives decoded in URL.Path.
	name := r.URL.Path[1:]
	doc, ok := f.docs[name]
	if !ok {
		http.NotFound(w, r)
		return
	}
	assert.Contains(f.t, r.Header.Get("Accept"), "application/vnd.npm.install-v1+json")
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		f.t.Errorf("encoding metadata: %v", err)
	}
}

func TestResolveImplementation(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry(t)
	reg.publish("left-pad", "1.0.0", "1.3.0", "1.3.7", "1.4.0-beta.1", "2.0.0")
	reg.publish("@babel/core", "7.20.0", "7.21.4")
	client := NewClient(WithBaseURL(reg.srv.URL + "/"))
	ctx := context.Background()

	tests := []struct {
		name        string
		typesName   string
		rangeExpr   string
		wantPackage string
		wantVersion string
	}{
		{"highest below ceiling", "@types/left-pad", "1.3.9999", "left-pad", "1.3.7"},
		{"older minor when missing", "@types/left-pad", "1.9.9999", "left-pad", "1.3.7"},
		{"lowest when all newer", "@types/left-pad", "0.1.9999", "left-pad", "1.0.0"},
		{"range expression", "@types/left-pad", "^1.0.0", "left-pad", "1.3.7"},
		{"scoped package", "@types/babel__core", "7.20.9999", "@babel/core", "7.20.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := client.ResolveImplementation(ctx, tt.typesName, tt.rangeExpr)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPackage, m.PackageName)
			assert.Equal(t, tt.wantVersion, m.PackageVersion)
			assert.NotEmpty(t, m.TarballURL)
			assert.NotEmpty(t, m.Integrity)
		})
	}
}

func TestResolveImplementation_NotFound(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry(t)
	client := NewClient(WithBaseURL(reg.srv.URL))

	m, err := client.ResolveImplementation(context.Background(), "@types/nope", "1.0.9999")
	assert.Nil(t, m)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveImplementation_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.ResolveImplementation(context.Background(), "@types/left-pad", "1.0.9999")

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestResolveImplementation_CachesMetadata(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry(t)
	reg.publish("left-pad", "1.3.0")
	client := NewClient(WithBaseURL(reg.srv.URL))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.ResolveImplementation(context.Background(), "@types/left-pad", "1.3.9999")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	_, err := client.ResolveImplementation(context.Background(), "@types/left-pad", "1.3.9999")
	require.NoError(t, err)

	assert.Equal(t, int32(1), reg.hits.Load())
}

func TestResolveImplementation_CanceledCallerKeepsSharedFetch(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry(t)
	reg.publish("left-pad", "1.3.0")
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		reg.serve(w, r)
	}))
	t.Cleanup(srv.Close)
	unblock := sync.OnceFunc(func() { close(release) })
	t.Cleanup(unblock)
	client := NewClient(WithBaseURL(srv.URL))

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := client.ResolveImplementation(ctx, "@types/left-pad", "1.3.9999")
		firstErr <- err
	}()
	<-started
	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	// The request started by the canceled caller still completes and
	// serves everyone else.
	unblock()
	m, err := client.ResolveImplementation(context.Background(), "@types/left-pad", "1.3.9999")
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", m.PackageVersion)
	assert.Equal(t, int32(1), reg.hits.Load())
}

func TestFetchPackage(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry(t)
	reg.publish("left-pad", "1.3.0")
	client := NewClient(WithBaseURL(reg.srv.URL))
	ctx := context.Background()

	m, err := client.ResolveImplementation(ctx, "@types/left-pad", "1.3.9999")
	require.NoError(t, err)

	pkg, err := client.FetchPackage(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, "left-pad", pkg.Name)
	assert.Equal(t, "1.3.0", pkg.Version)
	assert.Equal(t, []string{"index.js", "package.json"}, pkg.Files())

	tampered := *m
	tampered.Integrity = bundle.Integrity([]byte("something else"))
	_, err = client.FetchPackage(ctx, &tampered)
	assert.ErrorIs(t, err, bundle.ErrIntegrityMismatch)

	missing := *m
	missing.TarballURL = reg.srv.URL + "/tarballs/missing.tgz"
	_, err = client.FetchPackage(ctx, &missing)
	var httpErr *HTTPError
	assert.ErrorAs(t, err, &httpErr)
}

func TestEscapeName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "left-pad", escapeName("left-pad"))
	assert.Equal(t, "@babel%2fcore", escapeName("@babel/core"))
}
