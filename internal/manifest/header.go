// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"encoding/json"
	"fmt"
)

const (
	// NonNpmFalse marks types for a package published on npm.
	NonNpmFalse NonNpm = iota
	// NonNpmTrue marks types for something that is not an npm package.
	NonNpmTrue
	// NonNpmConflict marks non-npm types whose name collides with an
	// unrelated npm package.
	NonNpmConflict
)

type (
	// NonNpm is the tri-state "nonNpm" manifest field.
	NonNpm int

	// Owner is one maintainer entry of a manifest.
	Owner struct {
		Name           string `json:"name"`
		GitHubUsername string `json:"githubUsername,omitempty"`
		URL            string `json:"url,omitempty"`
	}

	// Header is the validated subset of a declaration package manifest.
	Header struct {
		Name                     string   `json:"name"`
		LibraryMajorVersion      int      `json:"libraryMajorVersion"`
		LibraryMinorVersion      int      `json:"libraryMinorVersion"`
		NonNpm                   NonNpm   `json:"nonNpm"`
		NonNpmDescription        string   `json:"nonNpmDescription,omitempty"`
		Owners                   []Owner  `json:"owners"`
		Projects                 []string `json:"projects"`
		MinimumTypeScriptVersion string   `json:"minimumTypeScriptVersion,omitempty"`
	}
)

// String returns the JSON spelling of the flag.
func (n NonNpm) String() string {
	switch n {
	case NonNpmFalse:
		return "false"
	case NonNpmTrue:
		return "true"
	case NonNpmConflict:
		return `"conflict"`
	default:
		return fmt.Sprintf("NonNpm(%d)", int(n))
	}
}

// IsSet reports whether the package claims to be something other than a
// plain npm package.
func (n NonNpm) IsSet() bool { return n != NonNpmFalse }

// MarshalJSON encodes the flag as false, true or "conflict".
func (n NonNpm) MarshalJSON() ([]byte, error) {
	switch n {
	case NonNpmFalse:
		return []byte("false"), nil
	case NonNpmTrue:
		return []byte("true"), nil
	case NonNpmConflict:
		return []byte(`"conflict"`), nil
	default:
		return nil, fmt.Errorf("invalid nonNpm value %d", int(n))
	}
}

// UnmarshalJSON accepts false, true and "conflict".
func (n *NonNpm) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v {
	case false, nil:
		*n = NonNpmFalse
	case true:
		*n = NonNpmTrue
	case "conflict":
		*n = NonNpmConflict
	default:
		return fmt.Errorf("nonNpm must be true, false or \"conflict\", got %s", data)
	}
	return nil
}

// TypesVersion returns "<major>.<minor>", the range the declared types
// cover.
func (h *Header) TypesVersion() string {
	return fmt.Sprintf("%d.%d", h.LibraryMajorVersion, h.LibraryMinorVersion)
}

// VersionCeiling returns "<major>.<minor>.9999", the highest version the
// declared types can describe.
func (h *Header) VersionCeiling() string {
	return h.TypesVersion() + ".9999"
}
