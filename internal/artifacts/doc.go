// Package artifacts downloads the precompiled asset manifests of a revision
// from an object store and places them inside a release directory.
//
// Manifests are published under "manifests/<revision>-<name>". A revision is
// only usable once both the webpack manifest and the sprockets manifest are
// present; with fewer than two objects the sync aborts before any file is
// written.
package artifacts
