package database

import (
	"context"
	"time"

	"github.com/tomyedwab/sqlbridge/bridge"
	"github.com/tomyedwab/sqlbridge/engine"
)

// Rows iterates one execution of a statement. Column names and projection
// modes are fixed when the iterator is created; toggling a mode on the
// statement afterwards does not affect rows already being iterated.
type Rows struct {
	s     *Statement
	cur   engine.Cursor
	cols  []string
	modes rowModes
	start time.Time
	done  bool
}

// Record is one step of iteration. Done marks exhaustion; once Done is
// true every further Next reports Done again.
type Record struct {
	Value any
	Done  bool
}

// Columns reports the iterator's column names.
func (r *Rows) Columns() []string {
	out := make([]string, len(r.cols))
	copy(out, r.cols)
	return out
}

// Next produces the next projected row.
func (r *Rows) Next() (Record, error) {
	return bridge.Do(r.s.db.disp, func() (Record, error) { return r.next() })
}

// NextAsync is Next as a promise.
func (r *Rows) NextAsync() *bridge.Promise[Record] {
	return bridge.Spawn(r.s.db.disp, func() (Record, error) { return r.next() })
}

func (r *Rows) next() (Record, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.done {
		return Record{Done: true}, nil
	}
	if err := r.s.guard(); err != nil {
		return Record{}, err
	}
	row, ok, err := r.cur.Next(context.Background())
	if err != nil {
		r.done = true
		return Record{}, err
	}
	if !ok {
		// The engine cursor rewound the statement on exhaustion; a stale
		// cursor must not reset a statement a newer cursor owns.
		r.done = true
		return Record{Done: true}, nil
	}
	return Record{Value: projectRow(row, r.cols, r.modes, time.Since(r.start))}, nil
}

// Close abandons the iteration early, rewinding the statement if this
// iterator still owns its cursor.
func (r *Rows) Close() error {
	return bridge.Do2(r.s.db.disp, func() error {
		r.s.mu.Lock()
		defer r.s.mu.Unlock()
		if r.done {
			return nil
		}
		r.done = true
		if err := r.s.guard(); err != nil {
			return err
		}
		return r.cur.Close()
	})
}
