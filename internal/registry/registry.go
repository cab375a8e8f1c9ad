// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no published package matches.
var ErrNotFound = errors.New("package not found in registry")

type (
	// Match is a published implementation package chosen for a
	// declaration package.
	Match struct {
		PackageName    string `json:"packageName"`
		PackageVersion string `json:"packageVersion"`
		TarballURL     string `json:"tarballUrl"`
		Integrity      string `json:"integrity,omitempty"`
	}

	// Resolver maps a declaration package name and version range to the
	// closest published implementation. Not found is reported as
	// (nil, nil) or an error wrapping ErrNotFound.
	Resolver interface {
		ResolveImplementation(ctx context.Context, typesPackageName, versionRange string) (*Match, error)
	}

	// HTTPError reports an unexpected registry response status.
	HTTPError struct {
		URL        string
		StatusCode int
	}
)

func (e *HTTPError) Error() string {
	return fmt.Sprintf("registry request %s: unexpected status %d", e.URL, e.StatusCode)
}

// ID returns "name@version".
func (m *Match) ID() string {
	return m.PackageName + "@" + m.PackageVersion
}
