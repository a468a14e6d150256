package sqlite

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/tomyedwab/sqlbridge/engine"
)

func openTestConn(t *testing.T) *Conn {
	t.Helper()
	eng := New(filepath.Join(t.TempDir(), "test.db"))
	conn, err := eng.Connect()
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn.(*Conn)
}

func mustExec(t *testing.T, conn *Conn, sql string) {
	t.Helper()
	if err := conn.ExecBatch(context.Background(), sql); err != nil {
		t.Fatalf("ExecBatch(%q): %v", sql, err)
	}
}

func TestPrepareAndQuery(t *testing.T) {
	conn := openTestConn(t)
	mustExec(t, conn, `
		CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, score REAL, avatar BLOB);
		INSERT INTO users (name, score, avatar) VALUES ('alice', 1.5, x'deadbeef');
		INSERT INTO users (name, score, avatar) VALUES ('bob', 2.25, NULL);
	`)

	stmt, err := conn.Prepare(context.Background(), "SELECT id, name, score, avatar FROM users ORDER BY id")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer stmt.Finalize()

	if got := stmt.ColumnCount(); got != 4 {
		t.Fatalf("ColumnCount = %d, want 4", got)
	}
	if got := stmt.ColumnName(1); got != "name" {
		t.Fatalf("ColumnName(1) = %q, want %q", got, "name")
	}

	cur, err := stmt.Query(context.Background())
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	row, ok, err := cur.Next(context.Background())
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if row[0].Type != engine.TypeInteger || row[0].Int != 1 {
		t.Errorf("row[0] = %+v, want integer 1", row[0])
	}
	if row[1].Type != engine.TypeText || row[1].Text != "alice" {
		t.Errorf("row[1] = %+v, want text alice", row[1])
	}
	if row[2].Type != engine.TypeReal || row[2].Float != 1.5 {
		t.Errorf("row[2] = %+v, want real 1.5", row[2])
	}
	if row[3].Type != engine.TypeBlob || !bytes.Equal(row[3].Blob, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Errorf("row[3] = %+v, want blob deadbeef", row[3])
	}

	row, ok, err = cur.Next(context.Background())
	if err != nil || !ok {
		t.Fatalf("second Next: ok=%v err=%v", ok, err)
	}
	if row[3].Type != engine.TypeNull {
		t.Errorf("row[3] = %+v, want null", row[3])
	}

	if _, ok, _ = cur.Next(context.Background()); ok {
		t.Fatal("cursor yielded a third row")
	}
	// Exhaustion is terminal.
	if _, ok, _ = cur.Next(context.Background()); ok {
		t.Fatal("exhausted cursor yielded a row")
	}
}

func TestBindPositional(t *testing.T) {
	conn := openTestConn(t)
	mustExec(t, conn, "CREATE TABLE t (a, b, c)")

	stmt, err := conn.Prepare(context.Background(), "INSERT INTO t VALUES (?, ?, ?)")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer stmt.Finalize()

	if got := stmt.ParamCount(); got != 3 {
		t.Fatalf("ParamCount = %d, want 3", got)
	}
	err = stmt.BindPositional([]engine.Value{
		engine.Integer(7),
		engine.Text("hi"),
		engine.Null(),
	})
	if err != nil {
		t.Fatalf("BindPositional: %v", err)
	}
	if err := stmt.Exec(context.Background()); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if got := conn.Changes(); got != 1 {
		t.Fatalf("Changes = %d, want 1", got)
	}
}

func TestBindNamed(t *testing.T) {
	conn := openTestConn(t)
	mustExec(t, conn, "CREATE TABLE t (a, b)")

	stmt, err := conn.Prepare(context.Background(), "INSERT INTO t VALUES (:first, @second)")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer stmt.Finalize()

	if got := stmt.ParamName(1); got != ":first" {
		t.Fatalf("ParamName(1) = %q, want %q", got, ":first")
	}
	err = stmt.BindNamed([]engine.NamedValue{
		{Name: "@second", Value: engine.Integer(2)},
		{Name: ":first", Value: engine.Integer(1)},
	})
	if err != nil {
		t.Fatalf("BindNamed: %v", err)
	}
	if err := stmt.Exec(context.Background()); err != nil {
		t.Fatalf("Exec: %v", err)
	}

	check, err := conn.Prepare(context.Background(), "SELECT a, b FROM t")
	if err != nil {
		t.Fatalf("Prepare select: %v", err)
	}
	defer check.Finalize()
	cur, _ := check.Query(context.Background())
	row, ok, err := cur.Next(context.Background())
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if row[0].Int != 1 || row[1].Int != 2 {
		t.Fatalf("row = %v, want [1 2]", row)
	}
}

func TestExecBatchRunsAllStatements(t *testing.T) {
	conn := openTestConn(t)
	mustExec(t, conn, `
		CREATE TABLE a (x);
		CREATE TABLE b (y);
		INSERT INTO a VALUES (1);
		INSERT INTO b VALUES (2);
	`)
	if got := conn.TotalChanges(); got != 2 {
		t.Fatalf("TotalChanges = %d, want 2", got)
	}
}

func TestLastInsertRowID(t *testing.T) {
	conn := openTestConn(t)
	mustExec(t, conn, `
		CREATE TABLE t (id INTEGER PRIMARY KEY, v);
		INSERT INTO t (id, v) VALUES (41, 'a');
		INSERT INTO t (v) VALUES ('b');
	`)
	if got := conn.LastInsertRowID(); got != 42 {
		t.Fatalf("LastInsertRowID = %d, want 42", got)
	}
}

func TestAutocommitTracksTransactions(t *testing.T) {
	conn := openTestConn(t)
	if !conn.Autocommit() {
		t.Fatal("fresh session not in autocommit")
	}
	mustExec(t, conn, "BEGIN")
	if conn.Autocommit() {
		t.Fatal("autocommit reported inside a transaction")
	}
	mustExec(t, conn, "COMMIT")
	if !conn.Autocommit() {
		t.Fatal("autocommit not restored after commit")
	}
}

func TestSyntaxErrorMapsToEngineError(t *testing.T) {
	conn := openTestConn(t)
	_, err := conn.Prepare(context.Background(), "NOT REAL SQL")
	if err == nil {
		t.Fatal("Prepare succeeded on invalid statement")
	}
	var ee *engine.Error
	if !errors.As(err, &ee) {
		t.Fatalf("error is %T, want *engine.Error", err)
	}
	if ee.Code != "SQLITE_ERROR" {
		t.Fatalf("Code = %q, want SQLITE_ERROR", ee.Code)
	}
	if ee.RawCode != 1 {
		t.Fatalf("RawCode = %d, want 1", ee.RawCode)
	}
}

func TestAuthorizerDeniesTable(t *testing.T) {
	conn := openTestConn(t)
	mustExec(t, conn, "CREATE TABLE secrets (v); CREATE TABLE public (v)")

	err := conn.SetAuthorizer(engine.AuthorizerFunc(func(a engine.Action) engine.Authorization {
		if a.Table == "secrets" {
			return engine.Deny
		}
		return engine.Allow
	}))
	if err != nil {
		t.Fatalf("SetAuthorizer: %v", err)
	}

	if _, err := conn.Prepare(context.Background(), "SELECT v FROM public"); err != nil {
		t.Fatalf("allowed table rejected: %v", err)
	}
	_, err = conn.Prepare(context.Background(), "SELECT v FROM secrets")
	if err == nil {
		t.Fatal("denied table compiled")
	}
	if !engine.IsAuthDenied(err) {
		t.Fatalf("error %v not an authorization failure", err)
	}

	// Clearing the authorizer restores access.
	if err := conn.SetAuthorizer(nil); err != nil {
		t.Fatalf("clear authorizer: %v", err)
	}
	if _, err := conn.Prepare(context.Background(), "SELECT v FROM secrets"); err != nil {
		t.Fatalf("table still denied after clearing: %v", err)
	}
}

func TestQueryInvalidatesPriorCursor(t *testing.T) {
	conn := openTestConn(t)
	mustExec(t, conn, "CREATE TABLE t (v); INSERT INTO t VALUES (1); INSERT INTO t VALUES (2)")

	stmt, err := conn.Prepare(context.Background(), "SELECT v FROM t")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer stmt.Finalize()

	first, _ := stmt.Query(context.Background())
	if _, ok, _ := first.Next(context.Background()); !ok {
		t.Fatal("first cursor yielded no rows")
	}
	second, _ := stmt.Query(context.Background())
	if _, ok, _ := first.Next(context.Background()); ok {
		t.Fatal("stale cursor still yielding rows")
	}
	if _, ok, _ := second.Next(context.Background()); !ok {
		t.Fatal("fresh cursor yielded no rows")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	eng := New(filepath.Join(t.TempDir(), "test.db"))
	conn, err := eng.Connect()
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := conn.ExecBatch(context.Background(), "SELECT 1"); !engine.IsNotOpen(err) {
		t.Fatalf("ExecBatch after close: %v, want not-open", err)
	}
}

func TestSyncUnsupportedLocally(t *testing.T) {
	eng := New(filepath.Join(t.TempDir(), "test.db"))
	if _, err := eng.Sync(context.Background()); err == nil {
		t.Fatal("Sync succeeded on a local database")
	}
	if _, ok := eng.MaxWriteReplicationIndex(); ok {
		t.Fatal("local database reported a replication index")
	}
}
