// SPDX-License-Identifier: MPL-2.0

// Package registry resolves declaration packages to the npm packages they
// describe and downloads implementation tarballs.
//
// Resolution reads abbreviated package metadata ("corgi" documents) and
// picks the highest release not newer than the declared version ceiling,
// falling back to the oldest release when every release is newer. Lookups
// are de-duplicated and cached per Client, so checking many declaration
// packages for the same library costs one metadata request.
package registry
