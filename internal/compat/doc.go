// SPDX-License-Identifier: MPL-2.0

// Package compat runs the type-correctness check for a declaration package
// and turns its outcome into warnings and errors.
//
// The declaration package is packed into an npm tarball, installed into the
// implementation package under node_modules/@types, and handed to a Checker.
// The outcome is one of pass, fail or error (the checker itself broke), and
// Route decides how each outcome is reported depending on whether the
// package is listed as expected to fail.
package compat
