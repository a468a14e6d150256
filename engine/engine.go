package engine

import (
	"context"
	"time"
)

// Engine is the top-level database object. It owns whatever resources the
// concrete engine needs (an on-disk file, an HTTP endpoint, a replica store)
// and hands out live sessions via Connect.
type Engine interface {
	// Connect opens a live session against the engine.
	Connect() (Conn, error)

	// Sync brings a replica up to date with its primary. Engines without a
	// replication source return an execution error.
	Sync(ctx context.Context) (SyncResult, error)

	// SyncUntil syncs at least up to the given replication index.
	SyncUntil(ctx context.Context, replicationIndex uint64) (SyncResult, error)

	// MaxWriteReplicationIndex reports the highest replication index this
	// engine has written, if it tracks one.
	MaxWriteReplicationIndex() (uint64, bool)

	// Close releases the engine's resources. Sessions already handed out
	// keep their own lifetime.
	Close() error
}

// Conn is a live engine session. Implementations are safe for concurrent
// use; callers above serialize per-handle where ordering matters.
type Conn interface {
	// Prepare compiles sql into a reusable statement.
	Prepare(ctx context.Context, sql string) (Stmt, error)

	// ExecBatch executes a semicolon-separated script, discarding any rows.
	ExecBatch(ctx context.Context, sql string) error

	// Changes reports the row count affected by the most recent statement.
	Changes() int64

	// TotalChanges reports the session-lifetime cumulative change counter.
	TotalChanges() int64

	// LastInsertRowID reports the rowid of the most recent insert.
	LastInsertRowID() int64

	// Autocommit reports whether the session is outside an explicit
	// transaction.
	Autocommit() bool

	// SetBusyTimeout bounds how long a write waits on a storage lock
	// before failing with a busy error.
	SetBusyTimeout(d time.Duration) error

	// SetAuthorizer installs a compile-time authorization callback.
	// A nil authorizer removes any installed one.
	SetAuthorizer(auth Authorizer) error

	// LoadExtension loads a native engine extension, if supported.
	LoadExtension(path, entryPoint string) error

	// Interrupt signals cooperative cancellation: in-flight operations on
	// this session fail with an interrupted error at their next checkpoint.
	Interrupt()

	// Close ends the session. Idempotent.
	Close() error
}

// Stmt is a compiled statement. A statement owns at most one cursor at a
// time: Query resets any prior cursor state before producing a new one.
type Stmt interface {
	// ParamCount reports the number of declared parameter slots.
	ParamCount() int

	// ParamName reports the declared name of parameter slot i (1-based),
	// including its leading sigil, or "" for a nameless positional slot.
	ParamName(i int) string

	// ColumnCount reports the number of result columns.
	ColumnCount() int

	// ColumnName reports the name of result column i (0-based).
	ColumnName(i int) string

	// Columns reports full column metadata.
	Columns() []ColumnInfo

	// BindPositional binds values to parameter slots 1..len(vals).
	BindPositional(vals []Value) error

	// BindNamed binds values to declared parameter names. Declared slots
	// with no matching value are left unbound.
	BindNamed(vals []NamedValue) error

	// Exec steps the statement to completion, discarding any rows, and
	// leaves it reset.
	Exec(ctx context.Context) error

	// Query resets the statement and returns a cursor over its result set
	// using the current bindings. Creating a new cursor invalidates any
	// previous one.
	Query(ctx context.Context) (Cursor, error)

	// Reset rewinds the statement's cursor state so it can be re-bound
	// and re-executed.
	Reset() error

	// Interrupt cooperatively cancels an in-flight operation.
	Interrupt()

	// Finalize destroys the statement. It must not affect the session.
	Finalize() error
}

// Cursor iterates the rows of one statement execution.
type Cursor interface {
	// Next produces the next row, or ok=false once the result set is
	// exhausted. Calling Next after exhaustion keeps returning ok=false.
	Next(ctx context.Context) (row []Value, ok bool, err error)

	// Columns reports the cursor's column names, fixed at creation.
	Columns() []string

	// Close abandons the iteration early, rewinding the statement if this
	// cursor still owns it. Closing a stale or exhausted cursor is a no-op.
	Close() error
}

// ColumnInfo describes one result column. Origin fields are empty when the
// engine cannot attribute the column to a table (expressions, some engines).
type ColumnInfo struct {
	Name     string
	Origin   string
	Table    string
	Database string
	DeclType string
}

// SyncResult reports the outcome of a replica sync operation.
type SyncResult struct {
	FramesSynced uint64
	FrameNo      uint64
}

// Syncer is the narrow replication collaborator a replica engine delegates
// to. The replication protocol itself lives behind this interface.
type Syncer interface {
	Sync(ctx context.Context) (SyncResult, error)
	SyncUntil(ctx context.Context, replicationIndex uint64) (SyncResult, error)
	MaxWriteReplicationIndex() (uint64, bool)
}
