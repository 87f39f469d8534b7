// Package releases manages the release history of revision-deployed applications.
//
// The Manager is the only component that mutates a history. Every operation
// reloads the persisted record, applies its change in memory and saves the
// whole value back, so the store stays the single source of truth. When no
// record exists yet the history is seeded from the release directories on
// disk, oldest first.
//
// The tail of a history is the active release. Rolling back is recording an
// already known release again, which moves it to the tail.
package releases
