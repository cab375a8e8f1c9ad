// SPDX-License-Identifier: MPL-2.0

// Package bundle holds npm package file trees in memory and converts them
// to and from gzip-compressed tarballs.
//
// A Package is keyed by slash-separated paths relative to the package root.
// Tarballs written by this package use the npm layout, where every entry is
// prefixed with "package/".
package bundle

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

const (
	// TarballRoot is the directory every entry of an npm tarball lives under.
	TarballRoot = "package"

	// ManifestFile is the npm manifest file name.
	ManifestFile = "package.json"

	// MaxFileSize bounds a single tarball entry.
	MaxFileSize = 64 << 20

	// MaxPackageSize bounds the total unpacked size of a tarball.
	MaxPackageSize = 256 << 20
)

// npm normalizes tarball mtimes to this instant so tarballs are reproducible.
var epoch = time.Date(1985, time.October, 26, 8, 15, 0, 0, time.UTC)

var (
	// ErrInvalidPath is returned when a file path escapes the package root.
	ErrInvalidPath = errors.New("invalid package path")

	// ErrTooLarge is returned when a tarball exceeds the size limits.
	ErrTooLarge = errors.New("package too large")
)

type (
	// Package is an in-memory npm package.
	Package struct {
		// Name and Version come from package.json when it is present.
		Name    string
		Version string

		files map[string][]byte
	}

	// PathError reports a tarball or directory entry that cannot be placed
	// inside a package.
	PathError struct {
		Path   string
		Reason string
	}
)

func (e *PathError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

func (e *PathError) Unwrap() error { return ErrInvalidPath }

// New returns an empty package.
func New(name, version string) *Package {
	return &Package{Name: name, Version: version, files: make(map[string][]byte)}
}

// AddFile stores data at the given package-relative path, replacing any
// previous content. Paths are cleaned and must stay inside the package.
func (p *Package) AddFile(name string, data []byte) error {
	clean, err := cleanPath(name)
	if err != nil {
		return err
	}
	if p.files == nil {
		p.files = make(map[string][]byte)
	}
	p.files[clean] = data
	if clean == ManifestFile {
		p.readManifest()
	}
	return nil
}

// ReadFile returns the content stored at name.
func (p *Package) ReadFile(name string) ([]byte, bool) {
	clean, err := cleanPath(name)
	if err != nil {
		return nil, false
	}
	data, ok := p.files[clean]
	return data, ok
}

// Files returns the package paths in lexical order.
func (p *Package) Files() []string {
	names := make([]string, 0, len(p.files))
	for name := range p.files {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of files.
func (p *Package) Len() int { return len(p.files) }

// MergedWithTypes returns a copy of p with the declaration package placed
// under node_modules/<types.Name>/, the layout a resolver sees when the
// types are installed next to the implementation.
func (p *Package) MergedWithTypes(types *Package) (*Package, error) {
	if types.Name == "" {
		return nil, fmt.Errorf("merge types into %s: declaration package has no name", p.Name)
	}
	merged := New(p.Name, p.Version)
	for name, data := range p.files {
		merged.files[name] = data
	}
	prefix := path.Join("node_modules", types.Name)
	for name, data := range types.files {
		merged.files[path.Join(prefix, name)] = data
	}
	return merged, nil
}

// FromDirectory loads every regular file below dir. Symlinks are skipped
// so a package cannot pull in files from outside its directory.
func FromDirectory(dir string) (*Package, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	pkg := New("", "")
	walkErr := filepath.WalkDir(absDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.Type()&fs.ModeSymlink != 0 || d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, relErr := filepath.Rel(absDir, p)
		if relErr != nil {
			return fmt.Errorf("failed to get relative path: %w", relErr)
		}
		data, readErr := os.ReadFile(p)
		if readErr != nil {
			return fmt.Errorf("failed to read %s: %w", rel, readErr)
		}
		return pkg.AddFile(filepath.ToSlash(rel), data)
	})
	if walkErr != nil {
		return nil, fmt.Errorf("failed to load package from %s: %w", dir, walkErr)
	}
	return pkg, nil
}

// CreateTarball builds an npm-style tarball from the files in dir.
func CreateTarball(dir string) ([]byte, error) {
	pkg, err := FromDirectory(dir)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pkg.WriteTarball(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FromTarball decodes a gzip-compressed tarball. The first path component
// of every entry is stripped, whatever its name, as npm does.
func FromTarball(r io.Reader) (pkg *Package, err error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer func() {
		if closeErr := gz.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	pkg = New("", "")
	var total int64
	tr := tar.NewReader(gz)
	for {
		hdr, nextErr := tr.Next()
		if errors.Is(nextErr, io.EOF) {
			break
		}
		if nextErr != nil {
			return nil, fmt.Errorf("failed to read tarball: %w", nextErr)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if hdr.Size > MaxFileSize {
			return nil, fmt.Errorf("%s: %w", hdr.Name, ErrTooLarge)
		}
		total += hdr.Size
		if total > MaxPackageSize {
			return nil, ErrTooLarge
		}

		name := stripRoot(hdr.Name)
		if name == "" {
			continue
		}
		data, readErr := io.ReadAll(io.LimitReader(tr, MaxFileSize))
		if readErr != nil {
			return nil, fmt.Errorf("failed to read %s: %w", hdr.Name, readErr)
		}
		if addErr := pkg.AddFile(name, data); addErr != nil {
			return nil, addErr
		}
	}
	return pkg, nil
}

// WriteTarball writes p as a gzip-compressed tarball with every entry under
// package/. Entries are sorted and timestamps fixed, so the same files
// always produce the same bytes.
func (p *Package) WriteTarball(w io.Writer) (err error) {
	gz := gzip.NewWriter(w)
	defer func() {
		if closeErr := gz.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	tw := tar.NewWriter(gz)
	defer func() {
		if closeErr := tw.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for _, name := range p.Files() {
		data := p.files[name]
		hdr := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     path.Join(TarballRoot, name),
			Size:     int64(len(data)),
			Mode:     0o644,
			ModTime:  epoch,
			Format:   tar.FormatPAX,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("failed to write header for %s: %w", name, err)
		}
		if _, err := tw.Write(data); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}

func (p *Package) readManifest() {
	var manifest struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(p.files[ManifestFile], &manifest); err != nil {
		return
	}
	p.Name = manifest.Name
	p.Version = manifest.Version
}

func cleanPath(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	clean := path.Clean("/" + name)[1:]
	if clean == "" || clean == "." {
		return "", &PathError{Path: name, Reason: "empty path"}
	}
	if path.IsAbs(name) || strings.HasPrefix(path.Clean(name), "..") {
		return "", &PathError{Path: name, Reason: "path escapes the package root"}
	}
	return clean, nil
}

func stripRoot(name string) string {
	name = strings.TrimPrefix(name, "./")
	if _, rest, ok := strings.Cut(name, "/"); ok {
		return rest
	}
	return ""
}
