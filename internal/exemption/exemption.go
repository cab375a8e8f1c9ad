// SPDX-License-Identifier: MPL-2.0

// Package exemption loads the list of packages whose npm version is known
// not to match a published release.
//
// The list is newline-delimited, one "name" or "name@vN" identifier per
// line. Blank lines and lines starting with "#" are ignored. Membership is
// an exact string match on the package directory identifier; versions are
// never compared semantically.
package exemption

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dtcheck/dtcheck/internal/pkgdir"
)

// DefaultFileName is the conventional exemption list name.
const DefaultFileName = "expectedNpmVersionFailures.txt"

// DefaultPath returns DefaultFileName next to the running executable, or
// DefaultFileName alone when that location is unknown.
func DefaultPath() string {
	exe, err := os.Executable()
	if err != nil {
		return DefaultFileName
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), DefaultFileName)
}

type (
	// Set is a read-only set of exempt package identifiers. The zero value
	// and a nil *Set are empty.
	Set struct {
		path    string
		entries map[string]int
	}

	// Entry is one identifier with the line it was declared on.
	Entry struct {
		ID   string
		Line int
	}
)

// Empty returns a set that contains nothing.
func Empty() *Set {
	return &Set{entries: map[string]int{}}
}

// Load reads the exemption list at path. A missing file, or an empty path,
// yields an empty set so a checkout without the list still runs; the missing
// file is logged as a warning since every mismatch will then be reported.
func Load(path string) (*Set, error) {
	if path == "" {
		return Empty(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("exemption list not found, npm version mismatches will not be exempted", "path", path)
			return Empty(), nil
		}
		return nil, fmt.Errorf("reading exemption list: %w", err)
	}
	defer func() { _ = f.Close() }()

	set, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("reading exemption list %s: %w", path, err)
	}
	set.path = path
	return set, nil
}

// Parse reads identifiers from r. CRLF line endings are accepted.
func Parse(r io.Reader) (*Set, error) {
	set := Empty()
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		id := strings.TrimSpace(strings.TrimSuffix(scanner.Text(), "\r"))
		if id == "" || strings.HasPrefix(id, "#") {
			continue
		}
		if _, _, err := pkgdir.ParseID(id); err != nil {
			slog.Warn("malformed exemption entry", "line", line, "entry", id, "error", err)
		}
		if _, dup := set.entries[id]; dup {
			continue
		}
		set.entries[id] = line
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return set, nil
}

// Contains reports whether id is exempt.
func (s *Set) Contains(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.entries[id]
	return ok
}

// Len returns the number of distinct identifiers.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Path returns the file the set was loaded from, or "" for a set that was
// not read from disk.
func (s *Set) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Entries returns the identifiers in file order.
func (s *Set) Entries() []Entry {
	if s == nil {
		return nil
	}
	entries := make([]Entry, 0, len(s.entries))
	for id, line := range s.entries {
		entries = append(entries, Entry{ID: id, Line: line})
	}
	slices.SortFunc(entries, func(a, b Entry) int { return a.Line - b.Line })
	return entries
}
