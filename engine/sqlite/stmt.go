package sqlite

import (
	"context"

	"zombiezen.com/go/sqlite"

	"github.com/tomyedwab/sqlbridge/engine"
)

// Stmt is a compiled statement on one embedded session. The underlying
// engine statement has a single cursor, so creating a new cursor via Query
// invalidates any previous one; gen tracks that.
type Stmt struct {
	c    *Conn
	stmt *sqlite.Stmt
	gen  uint64

	finalized bool
}

func (s *Stmt) ParamCount() int {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.stmt.BindParamCount()
}

func (s *Stmt) ParamName(i int) string {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.stmt.BindParamName(i)
}

func (s *Stmt) ColumnCount() int {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.stmt.ColumnCount()
}

func (s *Stmt) ColumnName(i int) string {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.stmt.ColumnName(i)
}

func (s *Stmt) Columns() []engine.ColumnInfo {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	n := s.stmt.ColumnCount()
	cols := make([]engine.ColumnInfo, n)
	for i := 0; i < n; i++ {
		cols[i] = engine.ColumnInfo{
			Name:     s.stmt.ColumnName(i),
			Table:    s.stmt.ColumnTableName(i),
			Database: s.stmt.ColumnDatabaseName(i),
		}
	}
	return cols
}

func (s *Stmt) BindPositional(vals []engine.Value) error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	for i, v := range vals {
		bindValue(s.stmt, i+1, v)
	}
	return nil
}

func (s *Stmt) BindNamed(vals []engine.NamedValue) error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	count := s.stmt.BindParamCount()
	for _, nv := range vals {
		for slot := 1; slot <= count; slot++ {
			if s.stmt.BindParamName(slot) == nv.Name {
				bindValue(s.stmt, slot, nv.Value)
				break
			}
		}
	}
	return nil
}

func (s *Stmt) Exec(ctx context.Context) error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.c.rearm()
	s.gen++
	// Rewind step state; an abandoned cursor may have left the statement
	// mid-result-set. Bindings survive the rewind.
	if err := s.stmt.Reset(); err != nil {
		return mapError(err)
	}
	for {
		hasRow, err := s.stmt.Step()
		if err != nil {
			return mapError(err)
		}
		if !hasRow {
			break
		}
	}
	if err := s.stmt.Reset(); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Stmt) Query(ctx context.Context) (engine.Cursor, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.c.rearm()
	s.gen++
	if err := s.stmt.Reset(); err != nil {
		return nil, mapError(err)
	}
	n := s.stmt.ColumnCount()
	cols := make([]string, n)
	for i := 0; i < n; i++ {
		cols[i] = s.stmt.ColumnName(i)
	}
	return &cursor{s: s, gen: s.gen, cols: cols}, nil
}

func (s *Stmt) Reset() error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.gen++
	if err := s.stmt.Reset(); err != nil {
		return mapError(err)
	}
	if err := s.stmt.ClearBindings(); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Stmt) Interrupt() {
	// The engine interrupts at session granularity.
	s.c.Interrupt()
}

func (s *Stmt) Finalize() error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if s.finalized {
		return nil
	}
	s.finalized = true
	s.gen++
	return mapError(s.stmt.Finalize())
}

func bindValue(stmt *sqlite.Stmt, slot int, v engine.Value) {
	switch v.Type {
	case engine.TypeInteger:
		stmt.BindInt64(slot, v.Int)
	case engine.TypeReal:
		stmt.BindFloat(slot, v.Float)
	case engine.TypeText:
		stmt.BindText(slot, v.Text)
	case engine.TypeBlob:
		stmt.BindBytes(slot, v.Blob)
	default:
		stmt.BindNull(slot)
	}
}

// cursor iterates the statement's single underlying cursor. A stale
// generation means the statement was re-queried or reset since the cursor
// was created; the cursor then reports exhaustion rather than stepping a
// cursor it no longer owns.
type cursor struct {
	s    *Stmt
	gen  uint64
	cols []string
	done bool
}

func (c *cursor) Next(ctx context.Context) ([]engine.Value, bool, error) {
	c.s.c.mu.Lock()
	defer c.s.c.mu.Unlock()
	if c.done || c.gen != c.s.gen || c.s.finalized {
		c.done = true
		return nil, false, nil
	}
	hasRow, err := c.s.stmt.Step()
	if err != nil {
		c.done = true
		return nil, false, mapError(err)
	}
	if !hasRow {
		// Genuine exhaustion of the live cursor; rewind so the statement
		// releases its locks. Bindings survive.
		c.done = true
		c.s.stmt.Reset()
		return nil, false, nil
	}
	row := make([]engine.Value, len(c.cols))
	for i := range row {
		row[i] = columnValue(c.s.stmt, i)
	}
	return row, true, nil
}

func (c *cursor) Columns() []string {
	return c.cols
}

func (c *cursor) Close() error {
	c.s.c.mu.Lock()
	defer c.s.c.mu.Unlock()
	if c.done || c.gen != c.s.gen || c.s.finalized {
		c.done = true
		return nil
	}
	c.done = true
	return mapError(c.s.stmt.Reset())
}

func columnValue(stmt *sqlite.Stmt, i int) engine.Value {
	switch stmt.ColumnType(i) {
	case sqlite.TypeInteger:
		return engine.Integer(stmt.ColumnInt64(i))
	case sqlite.TypeFloat:
		return engine.Real(stmt.ColumnFloat(i))
	case sqlite.TypeText:
		return engine.Text(stmt.ColumnText(i))
	case sqlite.TypeBlob:
		buf := make([]byte, stmt.ColumnLen(i))
		stmt.ColumnBytes(i, buf)
		return engine.Value{Type: engine.TypeBlob, Blob: buf}
	default:
		return engine.Null()
	}
}
