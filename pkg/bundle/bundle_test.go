// SPDX-License-Identifier: MPL-2.0

package bundle

import (
	"archive/tar"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func TestFromDirectory(t *testing.T) {
	t.Parallel()

	dir := writeTree(t, map[string]string{
		"package.json":    `{"name": "@types/left-pad", "version": "1.3.9999"}`,
		"index.d.ts":      "export declare function leftPad(s: string): string;",
		"sub/helper.d.ts": "export {};",
	})

	pkg, err := FromDirectory(dir)
	require.NoError(t, err)

	assert.Equal(t, "@types/left-pad", pkg.Name)
	assert.Equal(t, "1.3.9999", pkg.Version)
	assert.Equal(t, []string{"index.d.ts", "package.json", "sub/helper.d.ts"}, pkg.Files())
}

func TestTarballRoundTrip(t *testing.T) {
	t.Parallel()

	dir := writeTree(t, map[string]string{
		"package.json": `{"name": "@types/left-pad", "version": "1.3.9999"}`,
		"index.d.ts":   "declare const x: number;",
	})

	data, err := CreateTarball(dir)
	require.NoError(t, err)

	// Entries carry the npm "package/" prefix.
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gz)
	var names []string
	for {
		hdr, nextErr := tr.Next()
		if nextErr != nil {
			break
		}
		names = append(names, hdr.Name)
	}
	assert.Equal(t, []string{"package/index.d.ts", "package/package.json"}, names)

	pkg, err := FromTarball(bytes.NewReader(data))
	require.NoError(t, err)
	content, ok := pkg.ReadFile("index.d.ts")
	require.True(t, ok)
	assert.Equal(t, "declare const x: number;", string(content))
	assert.Equal(t, "@types/left-pad", pkg.Name)
}

func TestWriteTarball_Deterministic(t *testing.T) {
	t.Parallel()

	build := func() []byte {
		pkg := New("x", "1.0.0")
		require.NoError(t, pkg.AddFile("b.js", []byte("b")))
		require.NoError(t, pkg.AddFile("a.js", []byte("a")))
		var buf bytes.Buffer
		require.NoError(t, pkg.WriteTarball(&buf))
		return buf.Bytes()
	}

	assert.Equal(t, build(), build())
}

func TestMergedWithTypes(t *testing.T) {
	t.Parallel()

	impl := New("left-pad", "1.3.0")
	require.NoError(t, impl.AddFile("index.js", []byte("module.exports = {}")))
	types := New("@types/left-pad", "1.3.9999")
	require.NoError(t, types.AddFile("index.d.ts", []byte("export {}")))

	merged, err := impl.MergedWithTypes(types)
	require.NoError(t, err)

	assert.Equal(t, "left-pad", merged.Name)
	assert.Equal(t, []string{"index.js", "node_modules/@types/left-pad/index.d.ts"}, merged.Files())
	assert.Equal(t, 1, impl.Len(), "merge must not modify the implementation package")

	_, err = impl.MergedWithTypes(New("", ""))
	assert.Error(t, err)
}

func TestAddFile_RejectsEscapes(t *testing.T) {
	t.Parallel()

	pkg := New("x", "1.0.0")
	for _, name := range []string{"../evil", "/etc/passwd", "", "."} {
		err := pkg.AddFile(name, nil)
		assert.Truef(t, errors.Is(err, ErrInvalidPath), "AddFile(%q) error = %v", name, err)
	}
	require.NoError(t, pkg.AddFile("./lib/../index.js", nil))
	assert.Equal(t, []string{"index.js"}, pkg.Files())
}

func TestVerifyIntegrity(t *testing.T) {
	t.Parallel()

	data := []byte("tarball bytes")
	sri := Integrity(data)

	require.NoError(t, VerifyIntegrity(data, sri))

	err := VerifyIntegrity([]byte("tampered"), sri)
	var integrityErr *IntegrityError
	require.ErrorAs(t, err, &integrityErr)
	assert.ErrorIs(t, err, ErrIntegrityMismatch)

	assert.ErrorIs(t, VerifyIntegrity(data, "md5-abc"), ErrUnsupportedIntegrity)
}

func TestParseIntegrity_PicksStrongest(t *testing.T) {
	t.Parallel()

	data := []byte("x")
	sri512 := Integrity(data)
	d, err := ParseIntegrity("sha1-AAAA " + sri512)
	require.NoError(t, err)
	assert.Equal(t, "sha512", d.Algorithm().String())
}
