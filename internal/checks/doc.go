// SPDX-License-Identifier: MPL-2.0

// Package checks runs the conformance pipeline for declaration packages.
//
// A package goes through the configuration and manifest policy checks,
// then registry reconciliation and, when an implementation package was
// found, the type-correctness check. Every stage contributes warnings and
// errors to one Result. Only conditions that make further checking
// meaningless are returned as a *PackageError, and they abort the current
// package only.
package checks
