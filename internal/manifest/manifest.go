// SPDX-License-Identifier: MPL-2.0

// Package manifest validates the package.json of a declaration package.
//
// A missing or unparsable manifest is a hard error: nothing else about the
// package can be checked without it. Everything else is reported as a list
// of violations, and a Header is returned only when that list is empty.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/dtcheck/dtcheck/internal/pkgdir"
)

// FileName is the manifest file name.
const FileName = "package.json"

var (
	// ErrMissingManifest is returned when the package has no package.json.
	ErrMissingManifest = errors.New("missing 'package.json'")

	// ErrMalformedManifest is returned when package.json is not a JSON object.
	ErrMalformedManifest = errors.New("malformed 'package.json'")
)

var versionRegex = regexp.MustCompile(`^(\d+)\.(\d+)\.9999(?:-[0-9A-Za-z.-]+)?$`)

// ManifestError is a hard manifest failure for one package directory.
type ManifestError struct {
	Dir string
	Err error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("%s: %v", e.Dir, e.Err)
}

func (e *ManifestError) Unwrap() error { return e.Err }

// Check reads <dir>/package.json and validates it. supported lists the
// TypeScript versions "minimumTypeScriptVersion" may name.
func Check(dir string, supported []string) (*Header, []string, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, &ManifestError{Dir: dir, Err: ErrMissingManifest}
		}
		return nil, nil, &ManifestError{Dir: dir, Err: err}
	}
	return Validate(pkgdir.FromPath(dir), data, supported)
}

// Validate checks manifest bytes for the package in d.
func Validate(d pkgdir.Dir, data []byte, supported []string) (*Header, []string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		if err == nil {
			err = errors.New("expected a JSON object")
		}
		return nil, nil, &ManifestError{Dir: d.Path, Err: fmt.Errorf("%w: %w", ErrMalformedManifest, err)}
	}

	v := &validator{dir: d, raw: raw, header: &Header{}}
	v.name()
	v.version()
	v.nonNpm()
	v.projects()
	v.owners()
	v.minimumTypeScriptVersion(supported)
	v.private()
	v.devDependencies()

	if len(v.errs) > 0 {
		return nil, v.errs, nil
	}
	return v.header, nil, nil
}

type validator struct {
	dir    pkgdir.Dir
	raw    map[string]json.RawMessage
	header *Header
	errs   []string
}

func (v *validator) addf(format string, args ...any) {
	v.errs = append(v.errs, fmt.Sprintf(format, args...))
}

// field decodes key into dst and reports whether it was present and well
// typed. Type mismatches are recorded as violations.
func (v *validator) field(key string, dst any, want string) bool {
	raw, ok := v.raw[key]
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		v.addf("%q should be %s, but got %s", key, want, compact(raw))
		return false
	}
	return true
}

func (v *validator) name() {
	want := v.dir.TypesPackageName().String()
	var name string
	if !v.field("name", &name, "a string") {
		if _, present := v.raw["name"]; !present {
			v.addf("package.json should contain \"name\": %q", want)
		}
		return
	}
	if name != want {
		v.addf("\"name\" should be %q, but got %q", want, name)
		return
	}
	v.header.Name = name
}

func (v *validator) version() {
	var version string
	if !v.field("version", &version, "a string") {
		if _, present := v.raw["version"]; !present {
			v.addf("package.json should contain \"version\" matching \"<major>.<minor>.9999\"")
		}
		return
	}
	m := versionRegex.FindStringSubmatch(version)
	if m == nil {
		v.addf("\"version\" should match \"<major>.<minor>.9999\", but got %q", version)
		return
	}
	major, errMajor := strconv.Atoi(m[1])
	minor, errMinor := strconv.Atoi(m[2])
	if errMajor != nil || errMinor != nil {
		v.addf("\"version\" %q has an out of range component", version)
		return
	}
	if dv := v.dir.Version; dv != nil {
		if dv.Major != major || (dv.HasMinor && dv.Minor != minor) {
			v.addf("\"version\" %q does not match the version directory %s", version, dv)
			return
		}
	}
	v.header.LibraryMajorVersion = major
	v.header.LibraryMinorVersion = minor
}

func (v *validator) nonNpm() {
	if raw, ok := v.raw["nonNpm"]; ok {
		if err := v.header.NonNpm.UnmarshalJSON(raw); err != nil {
			v.addf("\"nonNpm\" should be true, false or \"conflict\", but got %s", compact(raw))
			return
		}
	}

	var desc string
	hasDesc := v.field("nonNpmDescription", &desc, "a string")
	switch {
	case v.header.NonNpm.IsSet() && strings.TrimSpace(desc) == "":
		v.addf("\"nonNpmDescription\" must be a non-empty string when \"nonNpm\" is %s", v.header.NonNpm)
	case !v.header.NonNpm.IsSet() && hasDesc:
		v.addf("\"nonNpmDescription\" is only allowed when \"nonNpm\" is true or \"conflict\"")
	default:
		v.header.NonNpmDescription = desc
	}
}

func (v *validator) projects() {
	var projects []string
	if !v.field("projects", &projects, "an array of URLs") {
		if _, present := v.raw["projects"]; !present {
			v.addf("package.json should contain \"projects\", a non-empty array of URLs")
		}
		return
	}
	if len(projects) == 0 {
		v.addf("\"projects\" must not be empty")
		return
	}
	for _, p := range projects {
		if !strings.HasPrefix(p, "https://") && !strings.HasPrefix(p, "http://") {
			v.addf("\"projects\" entry %q should be an http(s) URL", p)
		}
	}
	v.header.Projects = projects
}

func (v *validator) owners() {
	var owners []map[string]any
	if !v.field("owners", &owners, "an array of objects") {
		if _, present := v.raw["owners"]; !present {
			v.addf("package.json should contain \"owners\", a non-empty array")
		}
		return
	}
	if len(owners) == 0 {
		v.addf("\"owners\" must not be empty")
		return
	}
	valid := true
	for i, o := range owners {
		owner := Owner{}
		name, _ := o["name"].(string)
		if name == "" {
			v.addf("owner %d should have a \"name\"", i)
			valid = false
			continue
		}
		owner.Name = name
		gh, hasGH := o["githubUsername"].(string)
		url, hasURL := o["url"].(string)
		if hasGH == hasURL {
			v.addf("owner %q should have exactly one of \"githubUsername\" or \"url\"", name)
			valid = false
			continue
		}
		owner.GitHubUsername, owner.URL = gh, url
		for _, key := range slices.Sorted(maps.Keys(o)) {
			if key != "name" && key != "githubUsername" && key != "url" {
				v.addf("owner %q has unexpected property %q", name, key)
				valid = false
			}
		}
		v.header.Owners = append(v.header.Owners, owner)
	}
	if !valid {
		v.header.Owners = nil
	}
}

func (v *validator) minimumTypeScriptVersion(supported []string) {
	var tsVersion string
	if !v.field("minimumTypeScriptVersion", &tsVersion, "a string") {
		return
	}
	if len(supported) > 0 && !slices.Contains(supported, tsVersion) {
		v.addf("\"minimumTypeScriptVersion\" should be one of %s, but got %q", strings.Join(supported, ", "), tsVersion)
		return
	}
	v.header.MinimumTypeScriptVersion = tsVersion
}

func (v *validator) private() {
	if _, present := v.raw["private"]; !present {
		v.addf("package.json should have \"private\": true")
		return
	}
	var private bool
	if v.field("private", &private, "true") && !private {
		v.addf("package.json should have \"private\": true")
	}
}

func (v *validator) devDependencies() {
	want := v.dir.TypesPackageName().String()
	var deps map[string]string
	if !v.field("devDependencies", &deps, "an object of strings") {
		if _, present := v.raw["devDependencies"]; !present {
			v.addf("package.json should contain \"devDependencies\": {%q: \"workspace:.\"}", want)
		}
		return
	}
	if got, ok := deps[want]; !ok || got != "workspace:." {
		v.addf("\"devDependencies\" should contain %q: \"workspace:.\"", want)
	}
}

func compact(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
