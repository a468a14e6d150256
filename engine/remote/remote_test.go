package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tomyedwab/sqlbridge/engine"
)

// fakeServer implements just enough of the pipeline protocol to exercise
// the client: describe answers from a canned table, execute echoes canned
// rows, and every response rotates the baton.
type fakeServer struct {
	t *testing.T

	describe describeResult
	execute  executeResult
	execErr  *protoError

	lastAuth  string
	lastStmts []protoStmt
	batons    []string
}

func (f *fakeServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth = r.Header.Get("Authorization")
		var req pipelineRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("decoding request: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.batons = append(f.batons, req.Baton)

		resp := pipelineResponse{Baton: "baton-next"}
		for _, sr := range req.Requests {
			switch sr.Type {
			case "describe":
				resp.Results = append(resp.Results, streamResult{
					Type:     "ok",
					Response: &streamResponse{Type: "describe", Describe: &f.describe},
				})
			case "execute":
				if sr.Stmt != nil {
					f.lastStmts = append(f.lastStmts, *sr.Stmt)
				}
				if f.execErr != nil {
					resp.Results = append(resp.Results, streamResult{Type: "error", Error: f.execErr})
					continue
				}
				resp.Results = append(resp.Results, streamResult{
					Type:     "ok",
					Response: &streamResponse{Type: "execute", Result: &f.execute},
				})
			case "get_autocommit":
				resp.Results = append(resp.Results, streamResult{
					Type:     "ok",
					Response: &streamResponse{Type: "get_autocommit", IsAutocommit: true},
				})
			case "sequence", "close":
				resp.Results = append(resp.Results, streamResult{
					Type:     "ok",
					Response: &streamResponse{Type: sr.Type},
				})
			default:
				f.t.Errorf("unexpected request type %q", sr.Type)
			}
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func newTestConn(t *testing.T, f *fakeServer, token string) *Conn {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	eng := New(srv.URL, token)
	conn, err := eng.Connect()
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return conn.(*Conn)
}

func strptr(s string) *string { return &s }

func TestPrepareDescribesStatement(t *testing.T) {
	f := &fakeServer{
		t: t,
		describe: describeResult{
			Params: []protoParam{{Name: ":name"}, {Name: "@score"}},
			Cols:   []protoCol{{Name: "id", DeclType: "INTEGER"}, {Name: "name", DeclType: "TEXT"}},
		},
	}
	conn := newTestConn(t, f, "")
	stmt, err := conn.Prepare(context.Background(), "SELECT id, name FROM t WHERE name = :name AND score > @score")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if got := stmt.ParamCount(); got != 2 {
		t.Fatalf("ParamCount = %d, want 2", got)
	}
	if got := stmt.ParamName(1); got != ":name" {
		t.Fatalf("ParamName(1) = %q, want :name", got)
	}
	cols := stmt.Columns()
	if len(cols) != 2 || cols[1].Name != "name" || cols[1].DeclType != "TEXT" {
		t.Fatalf("Columns = %+v", cols)
	}
}

func TestQueryDecodesAllValueTypes(t *testing.T) {
	f := &fakeServer{
		t:        t,
		describe: describeResult{},
		execute: executeResult{
			Cols: []protoCol{{Name: "i"}, {Name: "f"}, {Name: "s"}, {Name: "b"}, {Name: "n"}},
			Rows: [][]protoValue{{
				{Type: "integer", Value: "9007199254740993"},
				{Type: "float", Value: 2.5},
				{Type: "text", Value: "hello"},
				{Type: "blob", Base64: base64.StdEncoding.EncodeToString([]byte{1, 2, 3})},
				{Type: "null"},
			}},
		},
	}
	conn := newTestConn(t, f, "")
	stmt, err := conn.Prepare(context.Background(), "SELECT i, f, s, b, n FROM t")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	cur, err := stmt.Query(context.Background())
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	row, ok, err := cur.Next(context.Background())
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if row[0].Type != engine.TypeInteger || row[0].Int != 9007199254740993 {
		t.Errorf("integer column = %+v", row[0])
	}
	if row[1].Type != engine.TypeReal || row[1].Float != 2.5 {
		t.Errorf("float column = %+v", row[1])
	}
	if row[2].Type != engine.TypeText || row[2].Text != "hello" {
		t.Errorf("text column = %+v", row[2])
	}
	if row[3].Type != engine.TypeBlob || len(row[3].Blob) != 3 {
		t.Errorf("blob column = %+v", row[3])
	}
	if row[4].Type != engine.TypeNull {
		t.Errorf("null column = %+v", row[4])
	}
	if _, ok, _ := cur.Next(context.Background()); ok {
		t.Fatal("cursor yielded extra row")
	}
}

func TestExecSendsArgsAndTracksCounters(t *testing.T) {
	f := &fakeServer{
		t:        t,
		describe: describeResult{Params: []protoParam{{Name: ""}}},
		execute: executeResult{
			AffectedRowCount: 2,
			LastInsertRowID:  strptr("17"),
			ReplicationIndex: strptr("100"),
		},
	}
	conn := newTestConn(t, f, "")
	stmt, err := conn.Prepare(context.Background(), "INSERT INTO t VALUES (?)")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := stmt.BindPositional([]engine.Value{engine.Integer(5)}); err != nil {
		t.Fatalf("BindPositional: %v", err)
	}
	if err := stmt.Exec(context.Background()); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if err := stmt.Exec(context.Background()); err != nil {
		t.Fatalf("second Exec: %v", err)
	}

	if len(f.lastStmts) != 2 {
		t.Fatalf("server saw %d executes, want 2", len(f.lastStmts))
	}
	sent := f.lastStmts[0]
	if sent.WantRows {
		t.Error("Exec requested rows")
	}
	if len(sent.Args) != 1 || sent.Args[0].Type != "integer" || sent.Args[0].Value != "5" {
		t.Errorf("args = %+v", sent.Args)
	}

	if got := conn.Changes(); got != 2 {
		t.Errorf("Changes = %d, want 2", got)
	}
	if got := conn.TotalChanges(); got != 4 {
		t.Errorf("TotalChanges = %d, want 4", got)
	}
	if got := conn.LastInsertRowID(); got != 17 {
		t.Errorf("LastInsertRowID = %d, want 17", got)
	}
	idx, ok := conn.eng.MaxWriteReplicationIndex()
	if !ok || idx != 100 {
		t.Errorf("MaxWriteReplicationIndex = (%d, %v), want (100, true)", idx, ok)
	}
}

func TestBatonThreadsAcrossRequests(t *testing.T) {
	f := &fakeServer{t: t, describe: describeResult{}}
	conn := newTestConn(t, f, "")
	if _, err := conn.Prepare(context.Background(), "SELECT 1"); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if _, err := conn.Prepare(context.Background(), "SELECT 2"); err != nil {
		t.Fatalf("second Prepare: %v", err)
	}
	if f.batons[0] != "" {
		t.Errorf("first request carried baton %q", f.batons[0])
	}
	if f.batons[1] != "baton-next" {
		t.Errorf("second request carried baton %q, want baton-next", f.batons[1])
	}
}

func TestServerErrorMapsSymbolicCode(t *testing.T) {
	f := &fakeServer{
		t:        t,
		describe: describeResult{},
		execErr:  &protoError{Message: "UNIQUE constraint failed: t.id", Code: "SQLITE_CONSTRAINT_PRIMARYKEY"},
	}
	conn := newTestConn(t, f, "")
	stmt, err := conn.Prepare(context.Background(), "INSERT INTO t VALUES (1)")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	err = stmt.Exec(context.Background())
	var ee *engine.Error
	if !errors.As(err, &ee) {
		t.Fatalf("error is %T (%v), want *engine.Error", err, err)
	}
	if ee.Code != "SQLITE_CONSTRAINT_PRIMARYKEY" {
		t.Errorf("Code = %q", ee.Code)
	}
	if ee.RawCode != 1555 {
		t.Errorf("RawCode = %d, want 1555", ee.RawCode)
	}
}

func TestBearerTokenSent(t *testing.T) {
	f := &fakeServer{t: t, describe: describeResult{}}
	conn := newTestConn(t, f, "secret-token")
	if _, err := conn.Prepare(context.Background(), "SELECT 1"); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if f.lastAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q", f.lastAuth)
	}
}

func TestExpiredTokenDiagnostic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	// Unsigned token with an exp one hour in the past. The client only reads
	// the claim; it never verifies the signature.
	expired := expiredTestToken(t)
	eng := New(srv.URL, expired)
	conn, _ := eng.Connect()
	_, err := conn.Prepare(context.Background(), "SELECT 1")
	if err == nil {
		t.Fatal("Prepare succeeded against 401 server")
	}
	if !strings.Contains(err.Error(), "expired") {
		t.Errorf("error %q does not mention expiry", err)
	}
	if !engine.IsAuthDenied(err) {
		t.Errorf("error %v not an auth failure", err)
	}
}

func expiredTestToken(t *testing.T) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	claims, err := json.Marshal(map[string]any{"exp": time.Now().Add(-time.Hour).Unix()})
	if err != nil {
		t.Fatalf("marshaling claims: %v", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(claims)
	return header + "." + payload + "."
}

func TestLibsqlSchemeNormalized(t *testing.T) {
	eng := New("libsql://db.example.com", "")
	if eng.endpoint != "https://db.example.com/v3/pipeline" {
		t.Fatalf("endpoint = %q", eng.endpoint)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	f := &fakeServer{t: t}
	conn := newTestConn(t, f, "")
	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := conn.Prepare(context.Background(), "SELECT 1"); !engine.IsNotOpen(err) {
		t.Fatalf("Prepare after close: %v, want not-open", err)
	}
}
