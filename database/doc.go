package database

// Package database is the embedding surface: it exposes databases and
// prepared statements as host-side handles over the engine implementations
// in engine/sqlite, engine/remote and engine/replica.
//
// A DB owns one engine session. Every engine operation runs on the shared
// bridge dispatcher; the synchronous methods block the caller until the
// dispatcher finishes, and each has an Async variant returning a promise.
// Statements are registered in the owning DB's handle arena, so closing the
// DB invalidates them immediately: any later use fails with the not-open
// error rather than touching a dead session.
