// Package sqlite implements the engine contract on top of an in-process
// SQLite database (zombiezen.com/go/sqlite, pure Go). It is the engine used
// for local database targets and for the local store of a replica.
//
// A session serializes engine access behind one mutex: the underlying
// connection is not safe for concurrent use, and the binding layer above
// already orders operations per handle. Cooperative interruption is wired
// through the engine's done-channel mechanism; firing an interrupt closes
// the current channel and the next operation on the session re-arms a fresh
// one.
package sqlite
