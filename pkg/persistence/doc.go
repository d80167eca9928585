// Package persistence stores project snapshots.
//
// FileStore keeps a single project as an indented JSON file, suitable for
// the command line. SQLStore keeps many projects in a SQLite database, one
// row per instance. Both return projects with their specs rebound against
// the catalog they are loaded with, so a snapshot naming a component the
// catalog no longer has fails to load instead of producing a half-typed
// project.
package persistence
