package database

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tomyedwab/sqlbridge/bridge"
	"github.com/tomyedwab/sqlbridge/engine"
)

// Statement is a prepared statement handle. The four mode toggles are
// independent and take effect on the next execution; results produced by an
// execution keep the modes that were set when it started.
type Statement struct {
	id   uuid.UUID
	db   *DB
	stmt engine.Stmt
	sql  string

	raw      atomic.Bool
	pluck    atomic.Bool
	safeInts atomic.Bool
	timing   atomic.Bool

	// mu serializes executions on this handle; a statement has one cursor.
	mu        sync.Mutex
	finalized atomic.Bool
}

// RunResult reports one write execution.
type RunResult struct {
	Changes         int64
	LastInsertRowID int64
	Duration        time.Duration
}

// ColumnMeta describes one result column of a statement.
type ColumnMeta struct {
	Name     string
	Column   string
	Table    string
	Database string
	Type     string
}

// ID is the statement's registry key within its owning handle.
func (s *Statement) ID() uuid.UUID { return s.id }

// Source reports the SQL text the statement was prepared from.
func (s *Statement) Source() string { return s.sql }

func (s *Statement) guard() error {
	if s.finalized.Load() || !s.db.open.Load() {
		return engine.NotOpenError()
	}
	return nil
}

// Run executes the statement, discarding any rows, and reports what it
// changed. The change count is zero when the statement modified nothing,
// even if the session's last-statement counter still carries an earlier
// value.
func (s *Statement) Run(args ...any) (RunResult, error) {
	return bridge.Do(s.db.disp, func() (RunResult, error) { return s.run(args) })
}

// RunAsync is Run as a promise.
func (s *Statement) RunAsync(args ...any) *bridge.Promise[RunResult] {
	return bridge.Spawn(s.db.disp, func() (RunResult, error) { return s.run(args) })
}

func (s *Statement) run(args []any) (RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return RunResult{}, err
	}
	// Drop any cursor state left by an earlier execution before rebinding.
	if err := s.stmt.Reset(); err != nil {
		return RunResult{}, err
	}
	if err := bindArgs(s.stmt, args); err != nil {
		return RunResult{}, err
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	conn := s.db.conn
	start := time.Now()
	before := conn.TotalChanges()
	if err := s.stmt.Exec(context.Background()); err != nil {
		return RunResult{}, err
	}
	changes := conn.Changes()
	if conn.TotalChanges() == before {
		changes = 0
	}
	return RunResult{
		Changes:         changes,
		LastInsertRowID: conn.LastInsertRowID(),
		Duration:        time.Since(start),
	}, nil
}

// Get executes the statement and returns its first row, projected by the
// statement's modes. found is false when the result set is empty.
func (s *Statement) Get(args ...any) (value any, found bool, err error) {
	type result struct {
		value any
		found bool
	}
	res, err := bridge.Do(s.db.disp, func() (result, error) {
		v, ok, err := s.get(args)
		return result{v, ok}, err
	})
	return res.value, res.found, err
}

// GetAsync is Get as a promise. An empty result settles with a nil value.
func (s *Statement) GetAsync(args ...any) *bridge.Promise[any] {
	return bridge.Spawn(s.db.disp, func() (any, error) {
		v, _, err := s.get(args)
		return v, err
	})
}

func (s *Statement) get(args []any) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return nil, false, err
	}
	if err := s.stmt.Reset(); err != nil {
		return nil, false, err
	}
	if err := bindArgs(s.stmt, args); err != nil {
		return nil, false, err
	}
	modes := s.snapshotModes()
	start := time.Now()
	cur, err := s.stmt.Query(context.Background())
	if err != nil {
		return nil, false, err
	}
	row, ok, err := cur.Next(context.Background())
	if err != nil {
		s.stmt.Reset()
		return nil, false, err
	}
	// Rewind immediately so a single-row read never pins locks.
	if rerr := s.stmt.Reset(); rerr != nil {
		return nil, false, rerr
	}
	if !ok {
		return nil, false, nil
	}
	return projectRow(row, cur.Columns(), modes, time.Since(start)), true, nil
}

// Rows executes the statement and returns an iterator over its result set.
// The iterator keeps the modes that were set when it was created.
func (s *Statement) Rows(args ...any) (*Rows, error) {
	return bridge.Do(s.db.disp, func() (*Rows, error) { return s.rows(args) })
}

// RowsAsync is Rows as a promise.
func (s *Statement) RowsAsync(args ...any) *bridge.Promise[*Rows] {
	return bridge.Spawn(s.db.disp, func() (*Rows, error) { return s.rows(args) })
}

// Iterate is an alias for Rows.
func (s *Statement) Iterate(args ...any) (*Rows, error) {
	return s.Rows(args...)
}

func (s *Statement) rows(args []any) (*Rows, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return nil, err
	}
	if err := s.stmt.Reset(); err != nil {
		return nil, err
	}
	if err := bindArgs(s.stmt, args); err != nil {
		return nil, err
	}
	cur, err := s.stmt.Query(context.Background())
	if err != nil {
		return nil, err
	}
	return &Rows{
		s:     s,
		cur:   cur,
		cols:  cur.Columns(),
		modes: s.snapshotModes(),
		start: time.Now(),
	}, nil
}

// All executes the statement and collects every projected row.
func (s *Statement) All(args ...any) ([]any, error) {
	rows, err := s.Rows(args...)
	if err != nil {
		return nil, err
	}
	var out []any
	for {
		rec, err := rows.Next()
		if err != nil {
			return nil, err
		}
		if rec.Done {
			return out, nil
		}
		out = append(out, rec.Value)
	}
}

// Raw switches the statement to raw tuples: each row comes back as a slice
// of column values in select order. It fails on statements that return no
// data. Raw() enables the mode; Raw(false) disables it.
func (s *Statement) Raw(on ...bool) (*Statement, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if s.stmt.ColumnCount() == 0 {
		return nil, engine.Errorf(1, "The raw() method is only for statements that return data")
	}
	s.raw.Store(optBool(on))
	return s, nil
}

// Pluck projects each row to its first column.
func (s *Statement) Pluck(on ...bool) *Statement {
	s.pluck.Store(optBool(on))
	return s
}

// SafeIntegers switches integer results to lossless 64-bit decoding for
// this statement.
func (s *Statement) SafeIntegers(on ...bool) *Statement {
	s.safeInts.Store(optBool(on))
	return s
}

// Timing attaches execution timing to rows projected in the default mode.
func (s *Statement) Timing(on ...bool) *Statement {
	s.timing.Store(optBool(on))
	return s
}

// Columns reports metadata for each result column.
func (s *Statement) Columns() ([]ColumnMeta, error) {
	return bridge.Do(s.db.disp, func() ([]ColumnMeta, error) {
		if err := s.guard(); err != nil {
			return nil, err
		}
		info := s.stmt.Columns()
		cols := make([]ColumnMeta, len(info))
		for i, ci := range info {
			cols[i] = ColumnMeta{
				Name:     ci.Name,
				Column:   ci.Origin,
				Table:    ci.Table,
				Database: ci.Database,
				Type:     ci.DeclType,
			}
		}
		return cols, nil
	})
}

// Interrupt cancels an in-flight execution of this statement.
func (s *Statement) Interrupt() {
	if s.finalized.Load() {
		return
	}
	s.stmt.Interrupt()
}

// Finalize destroys the statement and removes it from its handle's arena.
// Idempotent.
func (s *Statement) Finalize() error {
	if !s.finalized.CompareAndSwap(false, true) {
		return nil
	}
	s.db.forget(s.id)
	return bridge.Do2(s.db.disp, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.stmt.Finalize()
	})
}

// drop finalizes from DB.Close, already on a dispatcher worker.
func (s *Statement) drop() {
	if !s.finalized.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	s.stmt.Finalize()
	s.mu.Unlock()
}

type rowModes struct {
	raw      bool
	pluck    bool
	safeInts bool
	timing   bool
}

func (s *Statement) snapshotModes() rowModes {
	return rowModes{
		raw:      s.raw.Load(),
		pluck:    s.pluck.Load(),
		safeInts: s.safeInts.Load(),
		timing:   s.timing.Load(),
	}
}

// projectRow shapes one engine row for the host. Pluck wins over raw;
// timing metadata only attaches to the default map shape.
func projectRow(row []engine.Value, cols []string, m rowModes, elapsed time.Duration) any {
	if m.pluck {
		if len(row) == 0 {
			return nil
		}
		return fromEngineValue(row[0], m.safeInts)
	}
	if m.raw {
		out := make([]any, len(row))
		for i, v := range row {
			out[i] = fromEngineValue(v, m.safeInts)
		}
		return out
	}
	out := make(map[string]any, len(row)+1)
	for i, v := range row {
		out[cols[i]] = fromEngineValue(v, m.safeInts)
	}
	if m.timing {
		out["_metadata"] = map[string]any{"duration": elapsed.Seconds()}
	}
	return out
}

func optBool(on []bool) bool {
	if len(on) == 0 {
		return true
	}
	return on[0]
}
