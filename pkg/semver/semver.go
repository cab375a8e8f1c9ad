// SPDX-License-Identifier: MPL-2.0

// Package semver implements the subset of npm semantic versioning that
// declaration packages rely on: parsing published versions, evaluating
// ranges such as "2.1" or "<=2.1.9999", and picking the closest published
// release for a declared library version.
package semver

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	modsemver "golang.org/x/mod/semver"
)

// ErrInvalidVersion is the sentinel error wrapped by InvalidVersionError.
// ErrInvalidRange is the sentinel error wrapped by InvalidRangeError.
var (
	ErrInvalidVersion = errors.New("invalid version")
	ErrInvalidRange   = errors.New("invalid range")
)

// versionRegex matches fully specified versions. Partial versions are only
// accepted inside ranges, see parsePartial.
var versionRegex = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)(?:-([0-9A-Za-z\-.]+))?(?:\+([0-9A-Za-z\-.]+))?$`)

// partialRegex matches x-range operands: "2", "2.1", "2.1.x", "2.*", "2.1.3-pre".
var partialRegex = regexp.MustCompile(`^v?(\d+|[xX*])(?:\.(\d+|[xX*]))?(?:\.(\d+|[xX*]))?(?:-([0-9A-Za-z\-.]+))?(?:\+[0-9A-Za-z\-.]+)?$`)

var operatorRegex = regexp.MustCompile(`^(<=|>=|<|>|=|\^|~)?\s*(.*)$`)

type (
	// Version is a parsed, fully specified semantic version.
	Version struct {
		Major      int
		Minor      int
		Patch      int
		Prerelease string
		original   string
	}

	// InvalidVersionError is returned when a string is not a semantic version.
	InvalidVersionError struct {
		Value string
	}

	// InvalidRangeError is returned when a range expression cannot be parsed.
	InvalidRangeError struct {
		Value  string
		Reason string
	}

	// comparator is a single "<op> <version>" test. Bounds synthesized from
	// partial versions are implicit and never admit prereleases.
	comparator struct {
		op       string
		version  Version
		implicit bool
	}

	// Range is a set of comparator sets joined by "||"; a version satisfies
	// the range when it satisfies every comparator of at least one set.
	Range struct {
		sets     [][]comparator
		original string
	}
)

// Error implements the error interface.
func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid version %q", e.Value)
}

// Unwrap returns ErrInvalidVersion for errors.Is compatibility.
func (e *InvalidVersionError) Unwrap() error { return ErrInvalidVersion }

// Error implements the error interface.
func (e *InvalidRangeError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid range %q", e.Value)
	}
	return fmt.Sprintf("invalid range %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidRange for errors.Is compatibility.
func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }

// Parse parses a fully specified version ("1.2.3", "v1.2.3-beta.1").
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	m := versionRegex.FindStringSubmatch(s)
	if m == nil {
		return Version{}, &InvalidVersionError{Value: s}
	}
	v := Version{Prerelease: m[4], original: strings.TrimPrefix(s, "v")}
	var err error
	if v.Major, err = strconv.Atoi(m[1]); err != nil {
		return Version{}, &InvalidVersionError{Value: s}
	}
	if v.Minor, err = strconv.Atoi(m[2]); err != nil {
		return Version{}, &InvalidVersionError{Value: s}
	}
	if v.Patch, err = strconv.Atoi(m[3]); err != nil {
		return Version{}, &InvalidVersionError{Value: s}
	}
	return v, nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version without a leading "v".
func (v Version) String() string {
	if v.original != "" {
		return v.original
	}
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	return s
}

// IsPrerelease reports whether the version carries a prerelease tag.
func (v Version) IsPrerelease() bool { return v.Prerelease != "" }

// Compare returns -1, 0 or 1. Prerelease precedence follows semver 2.0
// (numeric identifiers compare numerically, a release outranks its prereleases).
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		return cmpInt(v.Major, other.Major)
	case v.Minor != other.Minor:
		return cmpInt(v.Minor, other.Minor)
	case v.Patch != other.Patch:
		return cmpInt(v.Patch, other.Patch)
	}
	switch {
	case v.Prerelease == other.Prerelease:
		return 0
	case v.Prerelease == "":
		return 1
	case other.Prerelease == "":
		return -1
	}
	// Core versions are equal here, so x/mod/semver only decides the
	// ordering of the two prerelease tags.
	return modsemver.Compare("v0.0.0-"+v.Prerelease, "v0.0.0-"+other.Prerelease)
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	return 1
}

// ParseRange parses an npm range expression. Supported forms: x-ranges
// ("2", "2.1", "2.1.x", "*"), primitive comparators (<, <=, >, >=, =),
// caret and tilde ranges, hyphen ranges ("1.2 - 2.3.4") and "||" unions.
func ParseRange(s string) (Range, error) {
	original := s
	s = strings.TrimSpace(s)
	if s == "" {
		s = "*"
	}
	r := Range{original: original}
	for _, part := range strings.Split(s, "||") {
		set, err := parseComparatorSet(strings.TrimSpace(part))
		if err != nil {
			return Range{}, &InvalidRangeError{Value: original, Reason: err.Error()}
		}
		r.sets = append(r.sets, set)
	}
	return r, nil
}

// String returns the original range expression.
func (r Range) String() string { return r.original }

// Contains reports whether v satisfies the range. Prerelease versions only
// satisfy a comparator set that names a prerelease on the same
// major.minor.patch tuple, matching npm's default behaviour.
func (r Range) Contains(v Version) bool {
	for _, set := range r.sets {
		if setContains(set, v) {
			return true
		}
	}
	return false
}

// Satisfies reports whether the version string satisfies the range string.
// Invalid inputs never satisfy.
func Satisfies(version, rangeExpr string) bool {
	v, err := Parse(version)
	if err != nil {
		return false
	}
	r, err := ParseRange(rangeExpr)
	if err != nil {
		return false
	}
	return r.Contains(v)
}

// MaxSatisfying returns the highest version in versions that satisfies r.
func MaxSatisfying(versions []Version, r Range) (Version, bool) {
	var best Version
	found := false
	for _, v := range versions {
		if !r.Contains(v) {
			continue
		}
		if !found || v.Compare(best) > 0 {
			best = v
			found = true
		}
	}
	return best, found
}

// Closest picks the published release that best corresponds to ceiling: the
// highest non-prerelease version not above it, or, when every release is
// newer, the lowest release above it. Prereleases are considered only when
// no release exists at all.
func Closest(versions []Version, ceiling Version) (Version, bool) {
	releases := slices.DeleteFunc(slices.Clone(versions), Version.IsPrerelease)
	if len(releases) == 0 {
		releases = slices.Clone(versions)
	}
	if len(releases) == 0 {
		return Version{}, false
	}
	slices.SortFunc(releases, Version.Compare)

	idx := -1
	for i, v := range releases {
		if v.Compare(ceiling) <= 0 {
			idx = i
		}
	}
	if idx >= 0 {
		return releases[idx], true
	}
	return releases[0], true
}

func setContains(set []comparator, v Version) bool {
	for _, c := range set {
		if !c.matches(v) {
			return false
		}
	}
	if !v.IsPrerelease() {
		return true
	}
	for _, c := range set {
		cv := c.version
		if !c.implicit && cv.IsPrerelease() && cv.Major == v.Major && cv.Minor == v.Minor && cv.Patch == v.Patch {
			return true
		}
	}
	return false
}

func (c comparator) matches(v Version) bool {
	cmp := v.Compare(c.version)
	switch c.op {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	default:
		return cmp == 0
	}
}

func parseComparatorSet(s string) ([]comparator, error) {
	if s == "" || s == "*" || s == "x" || s == "X" {
		return []comparator{{op: ">=", version: Version{}}}, nil
	}

	fields := strings.Fields(s)
	if len(fields) == 3 && fields[1] == "-" {
		return hyphenRange(fields[0], fields[2])
	}

	// Re-attach operators separated from their operand ("<= 2.1").
	var tokens []string
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if isBareOperator(f) && i+1 < len(fields) {
			f += fields[i+1]
			i++
		}
		tokens = append(tokens, f)
	}

	var set []comparator
	for _, tok := range tokens {
		cs, err := parseComparator(tok)
		if err != nil {
			return nil, err
		}
		set = append(set, cs...)
	}
	return set, nil
}

func isBareOperator(s string) bool {
	switch s {
	case "<", "<=", ">", ">=", "=", "^", "~":
		return true
	}
	return false
}

// partial is a version with possibly missing (wildcard) components.
type partial struct {
	major, minor, patch int
	hasMinor, hasPatch  bool
	wildMajor           bool
	prerelease          string
}

func parsePartial(s string) (partial, error) {
	m := partialRegex.FindStringSubmatch(s)
	if m == nil {
		return partial{}, fmt.Errorf("cannot parse %q", s)
	}
	var p partial
	if isWild(m[1]) {
		p.wildMajor = true
		return p, nil
	}
	p.major, _ = strconv.Atoi(m[1])
	if m[2] != "" && !isWild(m[2]) {
		p.minor, _ = strconv.Atoi(m[2])
		p.hasMinor = true
		if m[3] != "" && !isWild(m[3]) {
			p.patch, _ = strconv.Atoi(m[3])
			p.hasPatch = true
			p.prerelease = m[4]
		}
	}
	return p, nil
}

func isWild(s string) bool { return s == "x" || s == "X" || s == "*" }

func (p partial) floor() Version {
	return Version{Major: p.major, Minor: p.minor, Patch: p.patch, Prerelease: p.prerelease}
}

// nextCeiling returns the exclusive upper bound implied by the missing parts.
func (p partial) nextCeiling() Version {
	switch {
	case !p.hasMinor:
		return Version{Major: p.major + 1, Prerelease: "0"}
	default:
		return Version{Major: p.major, Minor: p.minor + 1, Prerelease: "0"}
	}
}

func parseComparator(tok string) ([]comparator, error) {
	m := operatorRegex.FindStringSubmatch(tok)
	op, operand := m[1], strings.TrimSpace(m[2])
	p, err := parsePartial(operand)
	if err != nil {
		return nil, err
	}
	if p.wildMajor {
		switch op {
		case "<", ">":
			// Nothing is below or above "*".
			return []comparator{below(Version{Prerelease: "0"})}, nil
		default:
			return []comparator{{op: ">=", version: Version{}}}, nil
		}
	}

	exact := p.hasMinor && p.hasPatch
	switch op {
	case "", "=":
		if exact {
			return []comparator{{op: "=", version: p.floor()}}, nil
		}
		return []comparator{{op: ">=", version: p.floor()}, below(p.nextCeiling())}, nil
	case ">=":
		return []comparator{{op: ">=", version: p.floor()}}, nil
	case "<":
		if exact && p.prerelease != "" {
			return []comparator{{op: "<", version: p.floor()}}, nil
		}
		return []comparator{below(withZeroPre(p.floor()))}, nil
	case ">":
		if exact {
			return []comparator{{op: ">", version: p.floor()}}, nil
		}
		return []comparator{{op: ">=", version: p.nextCeiling(), implicit: true}}, nil
	case "<=":
		if exact {
			return []comparator{{op: "<=", version: p.floor()}}, nil
		}
		return []comparator{below(p.nextCeiling())}, nil
	case "~":
		upper := Version{Major: p.major, Minor: p.minor + 1, Prerelease: "0"}
		if !p.hasMinor {
			upper = Version{Major: p.major + 1, Prerelease: "0"}
		}
		return []comparator{{op: ">=", version: p.floor()}, below(upper)}, nil
	case "^":
		var upper Version
		switch {
		case p.major != 0 || !p.hasMinor:
			upper = Version{Major: p.major + 1, Prerelease: "0"}
		case p.minor != 0 || !p.hasPatch:
			upper = Version{Minor: p.minor + 1, Prerelease: "0"}
		default:
			upper = Version{Patch: p.patch + 1, Prerelease: "0"}
		}
		return []comparator{{op: ">=", version: p.floor()}, below(upper)}, nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

func withZeroPre(v Version) Version {
	v.Prerelease = "0"
	return v
}

func below(v Version) comparator {
	return comparator{op: "<", version: v, implicit: true}
}

func hyphenRange(lo, hi string) ([]comparator, error) {
	from, err := parsePartial(lo)
	if err != nil {
		return nil, err
	}
	to, err := parsePartial(hi)
	if err != nil {
		return nil, err
	}
	set := []comparator{{op: ">=", version: from.floor()}}
	if to.wildMajor {
		return set, nil
	}
	if to.hasMinor && to.hasPatch {
		return append(set, comparator{op: "<=", version: to.floor()}), nil
	}
	return append(set, below(to.nextCeiling())), nil
}
