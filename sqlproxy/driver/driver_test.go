package driver

import (
	"bytes"
	"testing"

	"github.com/tomyedwab/sqlbridge/sqlproxy/host"
)

// The tests wire the guest driver straight to a host registry, which
// exercises the full JSON protocol without a WASM boundary.
func wireHost(t *testing.T) {
	t.Helper()
	h := host.NewSQLHost()
	SetHostHandler(h.HandleRequest)
	t.Cleanup(func() { CallHost = nil })
}

func openProxyDB(t *testing.T) *DB {
	t.Helper()
	wireHost(t)
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestProxyRoundTrip(t *testing.T) {
	db := openProxyDB(t)
	err := db.Exec(`
		CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, avatar BLOB);
		INSERT INTO users (name) VALUES ('alice');
	`)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}

	ins, err := db.Prepare("INSERT INTO users (name, avatar) VALUES (?, ?)")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer ins.Finalize()

	changes, rowid, err := ins.Run("bob", []byte{0xca, 0xfe})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if changes != 1 || rowid != 2 {
		t.Fatalf("Run = (%d, %d), want (1, 2)", changes, rowid)
	}

	sel, err := db.Prepare("SELECT name, avatar FROM users WHERE id = ?")
	if err != nil {
		t.Fatalf("Prepare select: %v", err)
	}
	defer sel.Finalize()

	v, found, err := sel.Get(2)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	row, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("row is %T", v)
	}
	if row["name"] != "bob" {
		t.Errorf("name = %v", row["name"])
	}
	blob, ok := row["avatar"].([]byte)
	if !ok || !bytes.Equal(blob, []byte{0xca, 0xfe}) {
		t.Errorf("avatar = %#v", row["avatar"])
	}
}

func TestProxyNamedArgsAndModes(t *testing.T) {
	db := openProxyDB(t)
	if err := db.Exec("CREATE TABLE t (a, b); INSERT INTO t VALUES (1, 'x'); INSERT INTO t VALUES (2, 'y')"); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	stmt, err := db.Prepare("SELECT b FROM t WHERE a = :a")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer stmt.Finalize()

	v, found, err := stmt.Pluck().Get(map[string]any{"a": 2})
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if v != "y" {
		t.Fatalf("value = %#v, want y", v)
	}
}

func TestProxyRowsIteration(t *testing.T) {
	db := openProxyDB(t)
	if err := db.Exec("CREATE TABLE t (v); INSERT INTO t VALUES (10); INSERT INTO t VALUES (20)"); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	stmt, err := db.Prepare("SELECT v FROM t ORDER BY v")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer stmt.Finalize()

	rows, err := stmt.Pluck().Rows()
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if cols := rows.Columns(); len(cols) != 1 || cols[0] != "v" {
		t.Fatalf("Columns = %v", cols)
	}
	var got []any
	for {
		v, done, err := rows.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if done {
			break
		}
		got = append(got, v)
	}
	if len(got) != 2 || got[0] != float64(10) || got[1] != float64(20) {
		t.Fatalf("rows = %v", got)
	}
	// Exhaustion is terminal on the guest side too.
	if _, done, _ := rows.Next(); !done {
		t.Fatal("exhausted iterator yielded a row")
	}
}

func TestProxyErrorsCarrySymbolicCodes(t *testing.T) {
	db := openProxyDB(t)
	err := db.Exec("NOT REAL SQL")
	if err == nil {
		t.Fatal("Exec accepted invalid script")
	}
	he, ok := err.(*HostError)
	if !ok {
		t.Fatalf("error is %T", err)
	}
	if he.Code != "SQLITE_ERROR" || he.RawCode != 1 {
		t.Fatalf("error = %+v", he)
	}
}

func TestProxyCloseInvalidatesHandles(t *testing.T) {
	db := openProxyDB(t)
	if err := db.Exec("CREATE TABLE t (v)"); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	stmt, err := db.Prepare("SELECT v FROM t")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, _, err := stmt.Get(); err == nil {
		t.Fatal("statement usable after database close")
	}
}

func TestProxyUnknownHandle(t *testing.T) {
	wireHost(t)
	bad := &Statement{id: "no-such-handle"}
	if _, _, err := bad.Run(); err == nil {
		t.Fatal("run on unknown handle succeeded")
	}
}
