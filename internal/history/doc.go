// Package history defines the release history value type.
//
// A History is an ordered, duplicate-free sequence of release directory
// paths for one application. The oldest known release comes first; the tail
// is by convention the active release. History values are immutable: every
// mutating method returns a new History.
package history
