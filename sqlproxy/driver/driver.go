package driver

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/tomyedwab/sqlbridge/sqlproxy/types"
)

// CallHost is the function the WASI host environment provides to carry
// proxy requests. It must be set before any database operation.
var CallHost func(requestPayload []byte) (responsePayload []byte, err error)

// SetHostHandler sets the function used to proxy requests to the host.
// This must be called before any database operations.
func SetHostHandler(handler func(requestPayload []byte) (responsePayload []byte, err error)) {
	CallHost = handler
}

// HostError is a failure reported by the host, with the engine's symbolic
// code when the host had one.
type HostError struct {
	Message string
	Code    string
	RawCode int
}

func (e *HostError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

func hostErr(info *types.ErrorInfo) error {
	if info == nil {
		return nil
	}
	return &HostError{Message: info.Message, Code: info.Code, RawCode: info.RawCode}
}

// call sends one request and decodes the response into out.
func call(req *types.Request, out any) error {
	if CallHost == nil {
		return fmt.Errorf("sqlproxy: CallHost function is not set")
	}
	reqPayload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("sqlproxy: failed to marshal %s request: %w", req.Command, err)
	}
	respPayload, err := CallHost(reqPayload)
	if err != nil {
		return fmt.Errorf("sqlproxy: CallHost for %s failed: %w", req.Command, err)
	}
	if err := json.Unmarshal(respPayload, out); err != nil {
		return fmt.Errorf("sqlproxy: failed to unmarshal %s response: %w", req.Command, err)
	}
	return nil
}

// Options configures Open on the guest side. Fields mirror the host's
// database options.
type Options struct {
	AuthToken        string
	SyncURL          string
	TimeoutMS        int64
	EncryptionCipher string
	EncryptionKey    string
}

// DB is a guest handle to a host-owned database.
type DB struct {
	id string
}

// Open opens a database on the host and returns its guest handle.
func Open(path string, opts ...Options) (*DB, error) {
	req := &types.Request{Command: "open", Path: path}
	if len(opts) > 0 {
		req.AuthToken = opts[0].AuthToken
		req.SyncURL = opts[0].SyncURL
		req.TimeoutMS = opts[0].TimeoutMS
		req.Cipher = opts[0].EncryptionCipher
		req.CipherKey = opts[0].EncryptionKey
	}
	var resp types.GeneralResponse
	if err := call(req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, hostErr(resp.Error)
	}
	if resp.DBID == "" {
		return nil, fmt.Errorf("sqlproxy: host did not return a database handle")
	}
	return &DB{id: resp.DBID}, nil
}

// Close releases the host-side handle. Idempotent.
func (db *DB) Close() error {
	var resp types.GeneralResponse
	if err := call(&types.Request{Command: "close", DBID: db.id}, &resp); err != nil {
		return err
	}
	return hostErr(resp.Error)
}

// Exec runs a semicolon-separated script on the host.
func (db *DB) Exec(sql string) error {
	var resp types.GeneralResponse
	if err := call(&types.Request{Command: "exec", DBID: db.id, SQL: sql}, &resp); err != nil {
		return err
	}
	return hostErr(resp.Error)
}

// Prepare compiles sql on the host and returns a statement handle.
func (db *DB) Prepare(sql string) (*Statement, error) {
	var resp types.GeneralResponse
	if err := call(&types.Request{Command: "prepare", DBID: db.id, SQL: sql}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, hostErr(resp.Error)
	}
	if resp.StmtID == "" {
		return nil, fmt.Errorf("sqlproxy: host did not return a statement handle")
	}
	return &Statement{id: resp.StmtID}, nil
}

// InTransaction reports whether the host session is inside an explicit
// transaction.
func (db *DB) InTransaction() (bool, error) {
	var resp types.StateResponse
	if err := call(&types.Request{Command: "in_transaction", DBID: db.id}, &resp); err != nil {
		return false, err
	}
	return resp.Value, hostErr(resp.Error)
}

// Interrupt cancels in-flight host operations on this handle.
func (db *DB) Interrupt() error {
	var resp types.GeneralResponse
	if err := call(&types.Request{Command: "interrupt", DBID: db.id}, &resp); err != nil {
		return err
	}
	return hostErr(resp.Error)
}

// Sync pulls a replica up to date with its primary.
func (db *DB) Sync() error {
	var resp types.GeneralResponse
	if err := call(&types.Request{Command: "sync", DBID: db.id}, &resp); err != nil {
		return err
	}
	return hostErr(resp.Error)
}

// SetAuthorizer installs table access rules on the host session. Verdicts
// are 0 to allow and 1 to deny; nil clears the rules.
func (db *DB) SetAuthorizer(rules map[string]int) error {
	var resp types.GeneralResponse
	if err := call(&types.Request{Command: "authorizer", DBID: db.id, Rules: rules}, &resp); err != nil {
		return err
	}
	return hostErr(resp.Error)
}

// Statement is a guest handle to a host-side prepared statement.
type Statement struct {
	id string
}

// Run executes the statement and reports what it changed.
func (s *Statement) Run(args ...any) (changes int64, lastInsertRowID int64, err error) {
	req, err := argsRequest("run", s.id, args)
	if err != nil {
		return 0, 0, err
	}
	var resp types.RunResponse
	if err := call(req, &resp); err != nil {
		return 0, 0, err
	}
	if resp.Error != nil {
		return 0, 0, hostErr(resp.Error)
	}
	return resp.Changes, resp.LastInsertRowID, nil
}

// Get executes the statement and returns its first row.
func (s *Statement) Get(args ...any) (value any, found bool, err error) {
	req, err := argsRequest("get", s.id, args)
	if err != nil {
		return nil, false, err
	}
	var resp types.RowResponse
	if err := call(req, &resp); err != nil {
		return nil, false, err
	}
	if resp.Error != nil {
		return nil, false, hostErr(resp.Error)
	}
	if !resp.Found {
		return nil, false, nil
	}
	return decodeValue(resp.Row), true, nil
}

// Rows executes the statement and returns an iterator handle.
func (s *Statement) Rows(args ...any) (*Rows, error) {
	req, err := argsRequest("rows", s.id, args)
	if err != nil {
		return nil, err
	}
	var resp types.RowsResponse
	if err := call(req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, hostErr(resp.Error)
	}
	return &Rows{id: resp.RowsID, cols: resp.Columns}, nil
}

// Finalize destroys the host-side statement. Idempotent.
func (s *Statement) Finalize() error {
	var resp types.GeneralResponse
	if err := call(&types.Request{Command: "finalize", StmtID: s.id}, &resp); err != nil {
		return err
	}
	return hostErr(resp.Error)
}

// Columns reports the statement's result column metadata.
func (s *Statement) Columns() ([]types.ColumnInfo, error) {
	var resp types.ColumnsResponse
	if err := call(&types.Request{Command: "columns", StmtID: s.id}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, hostErr(resp.Error)
	}
	return resp.Columns, nil
}

// Raw switches the statement to raw tuple projection.
func (s *Statement) Raw(on ...bool) *Statement { return s.setMode("raw", on) }

// Pluck projects each row to its first column.
func (s *Statement) Pluck(on ...bool) *Statement { return s.setMode("pluck", on) }

// SafeIntegers switches integer results to lossless decoding.
func (s *Statement) SafeIntegers(on ...bool) *Statement { return s.setMode("safe_integers", on) }

// Timing attaches execution timing to default-shaped rows.
func (s *Statement) Timing(on ...bool) *Statement { return s.setMode("timing", on) }

func (s *Statement) setMode(mode string, on []bool) *Statement {
	v := true
	if len(on) > 0 {
		v = on[0]
	}
	req := &types.Request{Command: "mode", StmtID: s.id}
	switch mode {
	case "raw":
		req.Raw = &v
	case "pluck":
		req.Pluck = &v
	case "safe_integers":
		req.SafeIntegers = &v
	case "timing":
		req.Timing = &v
	}
	var resp types.GeneralResponse
	// Mode changes on a bad handle surface on the next execution.
	call(req, &resp)
	return s
}

// Rows is a guest handle to a host-side row iterator.
type Rows struct {
	id   string
	cols []string
	done bool
}

// Columns reports the iterator's column names.
func (r *Rows) Columns() []string { return r.cols }

// Next produces the next row, or done=true once the set is exhausted.
func (r *Rows) Next() (value any, done bool, err error) {
	if r.done {
		return nil, true, nil
	}
	var resp types.RowResponse
	if err := call(&types.Request{Command: "next", RowsID: r.id}, &resp); err != nil {
		return nil, false, err
	}
	if resp.Error != nil {
		return nil, false, hostErr(resp.Error)
	}
	if resp.Done {
		r.done = true
		return nil, true, nil
	}
	return decodeValue(resp.Row), false, nil
}

// Close abandons the iteration early.
func (r *Rows) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	var resp types.GeneralResponse
	if err := call(&types.Request{Command: "close_rows", RowsID: r.id}, &resp); err != nil {
		return err
	}
	return hostErr(resp.Error)
}

func argsRequest(command, stmtID string, args []any) (*types.Request, error) {
	req := &types.Request{Command: command, StmtID: stmtID}
	if len(args) == 1 {
		if named, ok := args[0].(map[string]any); ok {
			enc := make(map[string]any, len(named))
			for k, v := range named {
				ev, err := encodeValue(v)
				if err != nil {
					return nil, err
				}
				enc[k] = ev
			}
			req.Named = enc
			return req, nil
		}
	}
	if len(args) > 0 {
		enc := make([]any, len(args))
		for i, v := range args {
			ev, err := encodeValue(v)
			if err != nil {
				return nil, err
			}
			enc[i] = ev
		}
		req.Args = enc
	}
	return req, nil
}

// encodeValue makes one argument JSON-safe for the wire.
func encodeValue(v any) (any, error) {
	if b, ok := v.([]byte); ok {
		return map[string]any{"$blob": base64.StdEncoding.EncodeToString(b)}, nil
	}
	return v, nil
}

// decodeValue unwraps blob wrappers in a projected row.
func decodeValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		if enc, ok := x["$blob"].(string); ok && len(x) == 1 {
			if raw, err := base64.StdEncoding.DecodeString(enc); err == nil {
				return raw
			}
		}
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = decodeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = decodeValue(e)
		}
		return out
	default:
		return v
	}
}
