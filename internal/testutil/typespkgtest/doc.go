// SPDX-License-Identifier: MPL-2.0

// Package typespkgtest writes declaration package fixtures to disk.
//
// Fixtures are compliant by default; options introduce exactly the
// violation a test is about.
//
// # Usage
//
//	import "github.com/dtcheck/dtcheck/internal/testutil/typespkgtest"
//
//	dir := typespkgtest.Write(t, root, "left-pad")
//	dir := typespkgtest.Write(t, root, "react",
//	    typespkgtest.WithVersionDir("v16"),
//	    typespkgtest.WithVersion("16.14.9999"),
//	    typespkgtest.WithManifestField("nonNpm", true),
//	)
package typespkgtest
