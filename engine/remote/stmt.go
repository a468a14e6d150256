package remote

import (
	"context"
	"fmt"

	"github.com/tomyedwab/sqlbridge/engine"
)

// Stmt is a statement prepared against a remote stream. The server does not
// hold compiled state for it; the SQL travels with every execution, and the
// metadata captured by the describe request stands in for compile-time
// introspection.
type Stmt struct {
	c    *Conn
	sql  string
	desc describeResult

	args  []protoValue
	named []protoNamedArg

	finalized bool
}

func (s *Stmt) ParamCount() int { return len(s.desc.Params) }

func (s *Stmt) ParamName(i int) string {
	if i < 1 || i > len(s.desc.Params) {
		return ""
	}
	return s.desc.Params[i-1].Name
}

func (s *Stmt) ColumnCount() int { return len(s.desc.Cols) }

func (s *Stmt) ColumnName(i int) string {
	if i < 0 || i >= len(s.desc.Cols) {
		return ""
	}
	return s.desc.Cols[i].Name
}

func (s *Stmt) Columns() []engine.ColumnInfo {
	cols := make([]engine.ColumnInfo, len(s.desc.Cols))
	for i, col := range s.desc.Cols {
		cols[i] = engine.ColumnInfo{Name: col.Name, DeclType: col.DeclType}
	}
	return cols
}

func (s *Stmt) BindPositional(vals []engine.Value) error {
	s.args = make([]protoValue, len(vals))
	for i, v := range vals {
		s.args[i] = valueToProto(v)
	}
	s.named = nil
	return nil
}

func (s *Stmt) BindNamed(vals []engine.NamedValue) error {
	s.named = make([]protoNamedArg, len(vals))
	for i, nv := range vals {
		s.named[i] = protoNamedArg{Name: nv.Name, Value: valueToProto(nv.Value)}
	}
	s.args = nil
	return nil
}

func (s *Stmt) run(ctx context.Context, wantRows bool) (*executeResult, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if s.finalized {
		return nil, engine.NotOpenError()
	}
	return s.c.execute(ctx, protoStmt{
		SQL:       s.sql,
		Args:      s.args,
		NamedArgs: s.named,
		WantRows:  wantRows,
	})
}

func (s *Stmt) Exec(ctx context.Context) error {
	_, err := s.run(ctx, false)
	return err
}

func (s *Stmt) Query(ctx context.Context) (engine.Cursor, error) {
	res, err := s.run(ctx, true)
	if err != nil {
		return nil, err
	}
	cols := make([]string, len(res.Cols))
	for i, col := range res.Cols {
		cols[i] = col.Name
	}
	rows := make([][]engine.Value, len(res.Rows))
	for i, raw := range res.Rows {
		row := make([]engine.Value, len(raw))
		for j, pv := range raw {
			v, err := valueFromProto(pv)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", i, j, err)
			}
			row[j] = v
		}
		rows[i] = row
	}
	return &cursor{cols: cols, rows: rows}, nil
}

func (s *Stmt) Reset() error {
	s.args = nil
	s.named = nil
	return nil
}

func (s *Stmt) Interrupt() {
	s.c.Interrupt()
}

func (s *Stmt) Finalize() error {
	s.finalized = true
	return nil
}

// cursor replays rows the server already materialized. The whole result set
// arrives with the execute response, so Next never blocks on the network.
type cursor struct {
	cols []string
	rows [][]engine.Value
	pos  int
}

func (c *cursor) Next(ctx context.Context) ([]engine.Value, bool, error) {
	if c.pos >= len(c.rows) {
		return nil, false, nil
	}
	row := c.rows[c.pos]
	c.pos++
	return row, true, nil
}

func (c *cursor) Columns() []string { return c.cols }

// Close is a no-op; the result set was materialized at query time.
func (c *cursor) Close() error { return nil }
