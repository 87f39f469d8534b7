// Package workspace manages staging directories for asset syncs.
//
// A workspace is created next to its final destination so that staged files
// can be moved into place with a rename. Workspaces are removed on Cleanup.
package workspace
