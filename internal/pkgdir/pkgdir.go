// SPDX-License-Identifier: MPL-2.0

// Package pkgdir resolves declaration package directories.
//
// A declaration package lives in a directory named after the package
// ("types/react"). Older majors live in a nested version directory
// ("types/react/v16", "types/node/v18.4") whose parent names the package.
package pkgdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/dtcheck/dtcheck/pkg/types"
)

var versionDirRegex = regexp.MustCompile(`^v(\d+)(?:\.(\d+))?$`)

var (
	// ErrNotDirectory is returned when a package path is not a directory.
	ErrNotDirectory = errors.New("not a package directory")

	// ErrInvalidIdentifier is returned by ParseID for malformed identifiers.
	ErrInvalidIdentifier = errors.New("invalid package identifier")
)

type (
	// Version is the version suffix of a version directory.
	Version struct {
		Major    int
		Minor    int
		HasMinor bool
	}

	// Dir identifies one declaration package on disk.
	Dir struct {
		// Path is the absolute directory path.
		Path string
		// Name is the unscoped-mangled package name ("react", "babel__core").
		Name string
		// Version is nil for the latest version of a package.
		Version *Version
	}

	// NotDirectoryError reports a path that cannot hold a package.
	NotDirectoryError struct {
		Path string
		Err  error
	}
)

func (e *NotDirectoryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Path, ErrNotDirectory, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Path, ErrNotDirectory)
}

func (e *NotDirectoryError) Unwrap() error { return ErrNotDirectory }

// String returns "vN" or "vN.M".
func (v Version) String() string {
	if v.HasMinor {
		return fmt.Sprintf("v%d.%d", v.Major, v.Minor)
	}
	return fmt.Sprintf("v%d", v.Major)
}

// ParseVersion parses a version directory name such as "v16" or "v18.4".
func ParseVersion(s string) (Version, bool) {
	m := versionDirRegex.FindStringSubmatch(s)
	if m == nil {
		return Version{}, false
	}
	major, err := strconv.Atoi(m[1])
	if err != nil {
		return Version{}, false
	}
	v := Version{Major: major}
	if m[2] != "" {
		minor, err := strconv.Atoi(m[2])
		if err != nil {
			return Version{}, false
		}
		v.Minor = minor
		v.HasMinor = true
	}
	return v, true
}

// Resolve turns a filesystem path into a Dir. The path must exist and be a
// directory.
func Resolve(path string) (Dir, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Dir{}, fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Dir{}, &NotDirectoryError{Path: path, Err: err}
	}
	if !info.IsDir() {
		return Dir{}, &NotDirectoryError{Path: path}
	}
	return FromPath(abs), nil
}

// FromPath derives a Dir from the path shape alone, without touching the
// filesystem.
func FromPath(path string) Dir {
	clean := filepath.Clean(path)
	base := filepath.Base(clean)
	if v, ok := ParseVersion(base); ok {
		return Dir{
			Path:    clean,
			Name:    filepath.Base(filepath.Dir(clean)),
			Version: &v,
		}
	}
	return Dir{Path: clean, Name: base}
}

// ID returns the identifier used by the exemption list: "name" for the
// latest version, "name@vN" or "name@vN.M" for a version directory.
func (d Dir) ID() string {
	if d.Version == nil {
		return d.Name
	}
	return d.Name + "@" + d.Version.String()
}

// DisplayName returns the directory name relative to the types root,
// "react" or "react/v16", as maintainers refer to it.
func (d Dir) DisplayName() string {
	if d.Version == nil {
		return d.Name
	}
	return d.Name + "/" + d.Version.String()
}

// TypesPackageName returns the npm name of the declaration package.
func (d Dir) TypesPackageName() types.PackageName {
	return types.PackageName(types.TypesScope + "/" + d.Name)
}

// ParseID parses an identifier of the form "name", "name@vN[.M]" or
// "name/vN[.M]".
func ParseID(id string) (name string, version *Version, err error) {
	id = strings.TrimSpace(id)
	sep := strings.LastIndexAny(id, "@/")
	if sep <= 0 {
		if id == "" || strings.ContainsAny(id, "@/") {
			return "", nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
		}
		return id, nil, nil
	}
	v, ok := ParseVersion(id[sep+1:])
	if !ok {
		return "", nil, fmt.Errorf("%w: %q: version must look like v16 or v16.8", ErrInvalidIdentifier, id)
	}
	return id[:sep], &v, nil
}
