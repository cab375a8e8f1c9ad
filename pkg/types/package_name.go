// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// TypesScope is the npm scope declaration packages are published under.
	TypesScope = "@types"

	maxPackageNameLength = 214
)

// ErrInvalidPackageName is the sentinel error wrapped by InvalidPackageNameError.
var ErrInvalidPackageName = errors.New("invalid package name")

var packageNameRegex = regexp.MustCompile(`^(?:@[a-z0-9][a-z0-9._~-]*/)?[a-z0-9][a-z0-9._~-]*$`)

type (
	// PackageName is an npm package name, optionally scoped ("@scope/name").
	PackageName string

	// InvalidPackageNameError is returned when a PackageName does not follow
	// npm naming rules.
	InvalidPackageNameError struct {
		Value  PackageName
		Reason string
	}
)

// String returns the string representation of the PackageName.
func (n PackageName) String() string { return string(n) }

// Validate checks the name against the npm naming rules the registry
// enforces for new packages.
func (n PackageName) Validate() error {
	s := string(n)
	switch {
	case s == "":
		return &InvalidPackageNameError{Value: n, Reason: "must not be empty"}
	case len(s) > maxPackageNameLength:
		return &InvalidPackageNameError{Value: n, Reason: fmt.Sprintf("must be at most %d characters", maxPackageNameLength)}
	case !packageNameRegex.MatchString(s):
		return &InvalidPackageNameError{Value: n, Reason: "must be lowercase and contain only URL-safe characters"}
	}
	return nil
}

// Scope returns the scope without "@", or "" for unscoped names.
func (n PackageName) Scope() string {
	s := string(n)
	if !strings.HasPrefix(s, "@") {
		return ""
	}
	scope, _, ok := strings.Cut(s[1:], "/")
	if !ok {
		return ""
	}
	return scope
}

// IsTypesPackage reports whether n lives in the @types scope.
func (n PackageName) IsTypesPackage() bool { return n.Scope() == "types" }

// TypesPackage returns the @types name for an implementation package.
// Scoped names are mangled: "@babel/core" becomes "@types/babel__core".
func (n PackageName) TypesPackage() PackageName {
	s := string(n)
	if strings.HasPrefix(s, "@") {
		s = strings.Replace(s[1:], "/", "__", 1)
	}
	return PackageName(TypesScope + "/" + s)
}

// ImplementationPackage reverses TypesPackage: "@types/babel__core"
// becomes "@babel/core". Names outside @types are returned unchanged.
func (n PackageName) ImplementationPackage() PackageName {
	if !n.IsTypesPackage() {
		return n
	}
	bare := strings.TrimPrefix(string(n), TypesScope+"/")
	if scope, name, ok := strings.Cut(bare, "__"); ok {
		return PackageName("@" + scope + "/" + name)
	}
	return PackageName(bare)
}

// Error implements the error interface for InvalidPackageNameError.
func (e *InvalidPackageNameError) Error() string {
	return fmt.Sprintf("invalid package name %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidPackageName for errors.Is() compatibility.
func (e *InvalidPackageNameError) Unwrap() error { return ErrInvalidPackageName }
