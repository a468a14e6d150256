package database

import (
	"context"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tomyedwab/sqlbridge/bridge"
	"github.com/tomyedwab/sqlbridge/engine"
	"github.com/tomyedwab/sqlbridge/engine/remote"
	"github.com/tomyedwab/sqlbridge/engine/replica"
	"github.com/tomyedwab/sqlbridge/engine/sqlite"
)

// DB is an open database handle.
type DB struct {
	id   uuid.UUID
	path string
	kind string // "local", "memory", "replica", "remote"

	eng  engine.Engine
	conn engine.Conn
	disp *bridge.Dispatcher

	open           atomic.Bool
	defaultSafeInt atomic.Bool

	// mu serializes multi-step operations that read session counters
	// around an execution, so concurrent handles cannot interleave.
	mu sync.Mutex

	stmtMu sync.Mutex
	stmts  map[uuid.UUID]*Statement
}

// Open opens path as a local database, an embedded replica (when
// opts.SyncURL is set) or a remote database (when path carries a remote
// scheme).
func Open(path string, opts Options) (*DB, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	disp, err := bridge.Default()
	if err != nil {
		return nil, err
	}

	var eng engine.Engine
	kind := "local"
	switch {
	case isRemotePath(path):
		eng = remote.New(path, opts.AuthToken)
		kind = "remote"
	case opts.SyncURL != "":
		rep := replica.New(path, opts.Syncer)
		if !opts.Offline {
			rep.StartPeriodicSync(opts.SyncPeriod)
		}
		eng = rep
		kind = "replica"
	default:
		eng = sqlite.New(path)
		if isMemoryPath(path) {
			kind = "memory"
		}
	}

	conn, err := bridge.Do(disp, func() (engine.Conn, error) { return eng.Connect() })
	if err != nil {
		eng.Close()
		return nil, err
	}
	if opts.BusyTimeout > 0 {
		if err := conn.SetBusyTimeout(opts.BusyTimeout); err != nil {
			conn.Close()
			eng.Close()
			return nil, err
		}
	}

	if opts.EncryptionKey != "" && kind != "remote" {
		// Cipher-enabled builds honor these pragmas; stock builds ignore
		// them, matching how the engine treats unrecognized pragmas.
		err := bridge.Do2(disp, func() error {
			return conn.ExecBatch(context.Background(),
				"PRAGMA cipher="+defaultCipher+"; PRAGMA hexkey='"+hex.EncodeToString([]byte(opts.EncryptionKey))+"';")
		})
		if err != nil {
			conn.Close()
			eng.Close()
			return nil, err
		}
	}

	db := &DB{
		id:    uuid.New(),
		path:  path,
		kind:  kind,
		eng:   eng,
		conn:  conn,
		disp:  disp,
		stmts: make(map[uuid.UUID]*Statement),
	}
	db.open.Store(true)
	return db, nil
}

// ID is the handle's registry key, unique per open.
func (db *DB) ID() uuid.UUID { return db.id }

// Name reports the path the database was opened with.
func (db *DB) Name() string { return db.path }

// Memory reports whether the database lives only in memory.
func (db *DB) Memory() bool { return db.kind == "memory" }

// Open reports whether the handle is still usable.
func (db *DB) Open() bool { return db.open.Load() }

// guard returns the live session, or the not-open error after Close.
func (db *DB) guard() (engine.Conn, error) {
	if !db.open.Load() {
		return nil, engine.NotOpenError()
	}
	return db.conn, nil
}

// Close releases the handle. Statements prepared from it fail from this
// point on. Close is idempotent.
func (db *DB) Close() error {
	if !db.open.CompareAndSwap(true, false) {
		return nil
	}
	db.stmtMu.Lock()
	stmts := db.stmts
	db.stmts = make(map[uuid.UUID]*Statement)
	db.stmtMu.Unlock()

	return bridge.Do2(db.disp, func() error {
		for _, s := range stmts {
			s.drop()
		}
		cerr := db.conn.Close()
		if eerr := db.eng.Close(); cerr == nil {
			cerr = eerr
		}
		return cerr
	})
}

// Exec runs a semicolon-separated script, discarding rows.
func (db *DB) Exec(sql string) error {
	conn, err := db.guard()
	if err != nil {
		return err
	}
	return bridge.Do2(db.disp, func() error {
		return conn.ExecBatch(context.Background(), sql)
	})
}

// ExecAsync is Exec as a promise.
func (db *DB) ExecAsync(sql string) *bridge.Promise[struct{}] {
	return bridge.Spawn(db.disp, func() (struct{}, error) {
		conn, err := db.guard()
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, conn.ExecBatch(context.Background(), sql)
	})
}

// Prepare compiles sql into a statement registered with this handle.
func (db *DB) Prepare(sql string) (*Statement, error) {
	return bridge.Do(db.disp, func() (*Statement, error) { return db.prepare(sql) })
}

// PrepareAsync is Prepare as a promise.
func (db *DB) PrepareAsync(sql string) *bridge.Promise[*Statement] {
	return bridge.Spawn(db.disp, func() (*Statement, error) { return db.prepare(sql) })
}

func (db *DB) prepare(sql string) (*Statement, error) {
	conn, err := db.guard()
	if err != nil {
		return nil, err
	}
	stmt, err := conn.Prepare(context.Background(), sql)
	if err != nil {
		return nil, err
	}
	s := &Statement{
		id:   uuid.New(),
		db:   db,
		stmt: stmt,
		sql:  sql,
	}
	s.safeInts.Store(db.defaultSafeInt.Load())
	db.stmtMu.Lock()
	db.stmts[s.id] = s
	db.stmtMu.Unlock()
	return s, nil
}

func (db *DB) forget(id uuid.UUID) {
	db.stmtMu.Lock()
	delete(db.stmts, id)
	db.stmtMu.Unlock()
}

// InTransaction reports whether the session is inside an explicit
// transaction.
func (db *DB) InTransaction() bool {
	conn, err := db.guard()
	if err != nil {
		return false
	}
	return !conn.Autocommit()
}

// Interrupt cancels in-flight operations on this handle.
func (db *DB) Interrupt() {
	if conn, err := db.guard(); err == nil {
		conn.Interrupt()
	}
}

// DefaultSafeIntegers sets the integer decoding default inherited by
// statements prepared after this call.
func (db *DB) DefaultSafeIntegers(on bool) {
	db.defaultSafeInt.Store(on)
}

// LoadExtension loads a native engine extension.
func (db *DB) LoadExtension(path string, entryPoint string) error {
	conn, err := db.guard()
	if err != nil {
		return err
	}
	return bridge.Do2(db.disp, func() error {
		return conn.LoadExtension(path, entryPoint)
	})
}

// Sync pulls the replica up to date with its primary.
func (db *DB) Sync() (engine.SyncResult, error) {
	if !db.open.Load() {
		return engine.SyncResult{}, engine.NotOpenError()
	}
	return bridge.Do(db.disp, func() (engine.SyncResult, error) {
		return db.eng.Sync(context.Background())
	})
}

// SyncAsync is Sync as a promise.
func (db *DB) SyncAsync() *bridge.Promise[engine.SyncResult] {
	return bridge.Spawn(db.disp, func() (engine.SyncResult, error) {
		if !db.open.Load() {
			return engine.SyncResult{}, engine.NotOpenError()
		}
		return db.eng.Sync(context.Background())
	})
}

// SyncUntil syncs at least up to the given replication index.
func (db *DB) SyncUntil(replicationIndex uint64) (engine.SyncResult, error) {
	if !db.open.Load() {
		return engine.SyncResult{}, engine.NotOpenError()
	}
	return bridge.Do(db.disp, func() (engine.SyncResult, error) {
		return db.eng.SyncUntil(context.Background(), replicationIndex)
	})
}

// SyncUntilAsync is SyncUntil as a promise.
func (db *DB) SyncUntilAsync(replicationIndex uint64) *bridge.Promise[engine.SyncResult] {
	return bridge.Spawn(db.disp, func() (engine.SyncResult, error) {
		if !db.open.Load() {
			return engine.SyncResult{}, engine.NotOpenError()
		}
		return db.eng.SyncUntil(context.Background(), replicationIndex)
	})
}

// MaxWriteReplicationIndex reports the highest replication index written
// through this handle's engine.
func (db *DB) MaxWriteReplicationIndex() (uint64, bool) {
	return db.eng.MaxWriteReplicationIndex()
}

// SetBusyTimeout adjusts the lock wait bound on the live session.
func (db *DB) SetBusyTimeout(d time.Duration) error {
	conn, err := db.guard()
	if err != nil {
		return err
	}
	return bridge.Do2(db.disp, func() error { return conn.SetBusyTimeout(d) })
}
