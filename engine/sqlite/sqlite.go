package sqlite

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"

	"github.com/tomyedwab/sqlbridge/engine"
)

// Engine is the embedded engine for one local database path (":memory:"
// included). Each Connect opens an independent session against the path.
type Engine struct {
	path string
}

// New creates an embedded engine for the given database path.
func New(path string) *Engine {
	return &Engine{path: path}
}

func (e *Engine) Connect() (engine.Conn, error) {
	conn, err := sqlite.OpenConn(e.path)
	if err != nil {
		return nil, mapError(err)
	}
	c := &Conn{conn: conn}
	c.intr = make(chan struct{})
	conn.SetInterrupt(c.intr)
	return c, nil
}

func (e *Engine) Sync(ctx context.Context) (engine.SyncResult, error) {
	return engine.SyncResult{}, engine.Errorf(1, "sync is not supported on a local database")
}

func (e *Engine) SyncUntil(ctx context.Context, replicationIndex uint64) (engine.SyncResult, error) {
	return engine.SyncResult{}, engine.Errorf(1, "sync is not supported on a local database")
}

func (e *Engine) MaxWriteReplicationIndex() (uint64, bool) {
	return 0, false
}

func (e *Engine) Close() error {
	return nil
}

// Conn is a live embedded session. All engine access goes through mu; intr
// is the interrupt done-channel currently installed on the connection.
type Conn struct {
	mu   sync.Mutex
	conn *sqlite.Conn

	intrMu    sync.Mutex
	intr      chan struct{}
	intrFired bool

	closed bool
}

// rearm installs a fresh interrupt channel if a previous Interrupt consumed
// the current one. Called at the start of each operation, with mu held.
func (c *Conn) rearm() {
	c.intrMu.Lock()
	defer c.intrMu.Unlock()
	if c.intrFired {
		c.intr = make(chan struct{})
		c.intrFired = false
		c.conn.SetInterrupt(c.intr)
	}
}

func (c *Conn) Interrupt() {
	c.intrMu.Lock()
	defer c.intrMu.Unlock()
	if !c.intrFired && c.intr != nil {
		close(c.intr)
		c.intrFired = true
	}
}

func (c *Conn) Prepare(ctx context.Context, sql string) (engine.Stmt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, engine.NotOpenError()
	}
	c.rearm()
	stmt, _, err := c.conn.PrepareTransient(strings.TrimSpace(sql))
	if err != nil {
		return nil, mapError(err)
	}
	return &Stmt{c: c, stmt: stmt}, nil
}

func (c *Conn) ExecBatch(ctx context.Context, script string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return engine.NotOpenError()
	}
	c.rearm()
	rest := script
	for {
		rest = strings.TrimSpace(rest)
		if rest == "" {
			return nil
		}
		stmt, trailing, err := c.conn.PrepareTransient(rest)
		if err != nil {
			return mapError(err)
		}
		for {
			hasRow, err := stmt.Step()
			if err != nil {
				stmt.Finalize()
				return mapError(err)
			}
			if !hasRow {
				break
			}
		}
		if err := stmt.Finalize(); err != nil {
			return mapError(err)
		}
		if trailing <= 0 {
			return nil
		}
		rest = rest[len(rest)-trailing:]
	}
}

func (c *Conn) Changes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}
	return int64(c.conn.Changes())
}

func (c *Conn) TotalChanges() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}
	// Cached persistent statement; Prepare resets it on reuse.
	stmt, err := c.conn.Prepare("SELECT total_changes();")
	if err != nil {
		return 0
	}
	defer stmt.Reset()
	hasRow, err := stmt.Step()
	if err != nil || !hasRow {
		return 0
	}
	return stmt.ColumnInt64(0)
}

func (c *Conn) LastInsertRowID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}
	return c.conn.LastInsertRowID()
}

func (c *Conn) Autocommit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	return c.conn.AutocommitEnabled()
}

func (c *Conn) SetBusyTimeout(d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return engine.NotOpenError()
	}
	c.conn.SetBusyTimeout(d)
	return nil
}

func (c *Conn) LoadExtension(path, entryPoint string) error {
	return engine.Errorf(1, "extension loading is not supported by the embedded engine")
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// mapError converts an engine-library error into the structured error type,
// preserving the raw result code when one is attached.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var ee *engine.Error
	if errors.As(err, &ee) {
		return err
	}
	raw := int(sqlite.ErrCode(err))
	if raw == 0 {
		raw = 1
	}
	return engine.NewError(raw, err.Error())
}
