package host

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomyedwab/sqlbridge/database"
	"github.com/tomyedwab/sqlbridge/engine"
	"github.com/tomyedwab/sqlbridge/sqlproxy/types"
)

// SQLHost serves proxy requests from embedded guests. It owns the handle
// registries: guests hold UUID strings, never pointers, so a guest can only
// reach objects this host minted for it.
type SQLHost struct {
	mu    sync.Mutex
	dbs   map[string]*database.DB
	stmts map[string]*stmtEntry
	rows  map[string]*rowsEntry
}

type stmtEntry struct {
	stmt *database.Statement
	dbID string
}

type rowsEntry struct {
	rows *database.Rows
	dbID string
}

// NewSQLHost creates an empty host registry.
func NewSQLHost() *SQLHost {
	return &SQLHost{
		dbs:   make(map[string]*database.DB),
		stmts: make(map[string]*stmtEntry),
		rows:  make(map[string]*rowsEntry),
	}
}

// HandleRequest processes a raw request payload and returns a raw response
// payload. This is the main entry point for host-side proxying logic.
func (h *SQLHost) HandleRequest(requestPayload []byte) ([]byte, error) {
	var req types.Request
	if err := json.Unmarshal(requestPayload, &req); err != nil {
		return marshalErrorResponse(fmt.Sprintf("failed to unmarshal request: %v", err))
	}

	var responseData any
	switch req.Command {
	case "open":
		responseData = h.handleOpen(&req)
	case "close":
		responseData = h.handleClose(&req)
	case "exec":
		responseData = h.handleExec(&req)
	case "prepare":
		responseData = h.handlePrepare(&req)
	case "run":
		responseData = h.handleRun(&req)
	case "get":
		responseData = h.handleGet(&req)
	case "rows":
		responseData = h.handleRows(&req)
	case "next":
		responseData = h.handleNext(&req)
	case "close_rows":
		responseData = h.handleCloseRows(&req)
	case "finalize":
		responseData = h.handleFinalize(&req)
	case "mode":
		responseData = h.handleMode(&req)
	case "columns":
		responseData = h.handleColumns(&req)
	case "in_transaction":
		responseData = h.handleInTransaction(&req)
	case "interrupt":
		responseData = h.handleInterrupt(&req)
	case "sync":
		responseData = h.handleSync(&req)
	case "authorizer":
		responseData = h.handleAuthorizer(&req)
	default:
		return marshalErrorResponse(fmt.Sprintf("unknown command: %s", req.Command))
	}

	return json.Marshal(responseData)
}

func marshalErrorResponse(errMsg string) ([]byte, error) {
	resp := types.GeneralResponse{Error: &types.ErrorInfo{Message: errMsg}}
	payload, err := json.Marshal(resp)
	if err != nil {
		// Critical failure: can't even marshal the error response.
		return []byte(fmt.Sprintf(`{"error":{"message":"critical: failed to marshal error response for: %s"}}`, errMsg)),
			fmt.Errorf("failed to marshal error response for '%s': %w", errMsg, err)
	}
	return payload, nil
}

func errInfo(err error) *types.ErrorInfo {
	if err == nil {
		return nil
	}
	var ee *engine.Error
	if errors.As(err, &ee) {
		return &types.ErrorInfo{Message: ee.Message, Code: ee.Code, RawCode: ee.RawCode}
	}
	return &types.ErrorInfo{Message: err.Error()}
}

func (h *SQLHost) lookupDB(id string) (*database.DB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	db, ok := h.dbs[id]
	if !ok {
		return nil, fmt.Errorf("database handle not found: %s", id)
	}
	return db, nil
}

func (h *SQLHost) lookupStmt(id string) (*database.Statement, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.stmts[id]
	if !ok {
		return nil, fmt.Errorf("statement handle not found: %s", id)
	}
	return e.stmt, nil
}

func (h *SQLHost) handleOpen(req *types.Request) types.GeneralResponse {
	db, err := database.Open(req.Path, database.Options{
		AuthToken:        req.AuthToken,
		SyncURL:          req.SyncURL,
		BusyTimeout:      time.Duration(req.TimeoutMS) * time.Millisecond,
		EncryptionCipher: req.Cipher,
		EncryptionKey:    req.CipherKey,
	})
	if err != nil {
		return types.GeneralResponse{Error: errInfo(err)}
	}
	id := uuid.NewString()
	h.mu.Lock()
	h.dbs[id] = db
	h.mu.Unlock()
	return types.GeneralResponse{DBID: id}
}

func (h *SQLHost) handleClose(req *types.Request) types.GeneralResponse {
	h.mu.Lock()
	db, ok := h.dbs[req.DBID]
	if ok {
		delete(h.dbs, req.DBID)
		for id, e := range h.stmts {
			if e.dbID == req.DBID {
				delete(h.stmts, id)
			}
		}
		for id, e := range h.rows {
			if e.dbID == req.DBID {
				delete(h.rows, id)
			}
		}
	}
	h.mu.Unlock()
	if !ok {
		// Idempotent: closing an unknown handle is not an error.
		return types.GeneralResponse{}
	}
	return types.GeneralResponse{Error: errInfo(db.Close())}
}

func (h *SQLHost) handleExec(req *types.Request) types.GeneralResponse {
	db, err := h.lookupDB(req.DBID)
	if err != nil {
		return types.GeneralResponse{Error: errInfo(err)}
	}
	return types.GeneralResponse{Error: errInfo(db.Exec(req.SQL))}
}

func (h *SQLHost) handlePrepare(req *types.Request) types.GeneralResponse {
	db, err := h.lookupDB(req.DBID)
	if err != nil {
		return types.GeneralResponse{Error: errInfo(err)}
	}
	stmt, err := db.Prepare(req.SQL)
	if err != nil {
		return types.GeneralResponse{Error: errInfo(err)}
	}
	id := uuid.NewString()
	h.mu.Lock()
	h.stmts[id] = &stmtEntry{stmt: stmt, dbID: req.DBID}
	h.mu.Unlock()
	return types.GeneralResponse{StmtID: id}
}

func (h *SQLHost) handleRun(req *types.Request) types.RunResponse {
	stmt, err := h.lookupStmt(req.StmtID)
	if err != nil {
		return types.RunResponse{Error: errInfo(err)}
	}
	args, err := decodeArgs(req)
	if err != nil {
		return types.RunResponse{Error: errInfo(err)}
	}
	res, err := stmt.Run(args...)
	if err != nil {
		return types.RunResponse{Error: errInfo(err)}
	}
	return types.RunResponse{
		Changes:         res.Changes,
		LastInsertRowID: res.LastInsertRowID,
		DurationMS:      float64(res.Duration) / float64(time.Millisecond),
	}
}

func (h *SQLHost) handleGet(req *types.Request) types.RowResponse {
	stmt, err := h.lookupStmt(req.StmtID)
	if err != nil {
		return types.RowResponse{Error: errInfo(err)}
	}
	args, err := decodeArgs(req)
	if err != nil {
		return types.RowResponse{Error: errInfo(err)}
	}
	value, found, err := stmt.Get(args...)
	if err != nil {
		return types.RowResponse{Error: errInfo(err)}
	}
	return types.RowResponse{Row: encodeValue(value), Found: found}
}

func (h *SQLHost) handleRows(req *types.Request) types.RowsResponse {
	h.mu.Lock()
	e, ok := h.stmts[req.StmtID]
	h.mu.Unlock()
	if !ok {
		return types.RowsResponse{Error: errInfo(fmt.Errorf("statement handle not found: %s", req.StmtID))}
	}
	args, err := decodeArgs(req)
	if err != nil {
		return types.RowsResponse{Error: errInfo(err)}
	}
	rows, err := e.stmt.Rows(args...)
	if err != nil {
		return types.RowsResponse{Error: errInfo(err)}
	}
	id := uuid.NewString()
	h.mu.Lock()
	h.rows[id] = &rowsEntry{rows: rows, dbID: e.dbID}
	h.mu.Unlock()
	return types.RowsResponse{RowsID: id, Columns: rows.Columns()}
}

func (h *SQLHost) handleNext(req *types.Request) types.RowResponse {
	h.mu.Lock()
	e, ok := h.rows[req.RowsID]
	h.mu.Unlock()
	if !ok {
		return types.RowResponse{Error: errInfo(fmt.Errorf("rows handle not found: %s", req.RowsID))}
	}
	rec, err := e.rows.Next()
	if err != nil {
		return types.RowResponse{Error: errInfo(err)}
	}
	if rec.Done {
		h.mu.Lock()
		delete(h.rows, req.RowsID)
		h.mu.Unlock()
		return types.RowResponse{Done: true}
	}
	return types.RowResponse{Row: encodeValue(rec.Value), Found: true}
}

func (h *SQLHost) handleCloseRows(req *types.Request) types.GeneralResponse {
	h.mu.Lock()
	e, ok := h.rows[req.RowsID]
	delete(h.rows, req.RowsID)
	h.mu.Unlock()
	if !ok {
		return types.GeneralResponse{}
	}
	return types.GeneralResponse{Error: errInfo(e.rows.Close())}
}

func (h *SQLHost) handleFinalize(req *types.Request) types.GeneralResponse {
	h.mu.Lock()
	e, ok := h.stmts[req.StmtID]
	delete(h.stmts, req.StmtID)
	h.mu.Unlock()
	if !ok {
		return types.GeneralResponse{}
	}
	return types.GeneralResponse{Error: errInfo(e.stmt.Finalize())}
}

func (h *SQLHost) handleMode(req *types.Request) types.GeneralResponse {
	stmt, err := h.lookupStmt(req.StmtID)
	if err != nil {
		return types.GeneralResponse{Error: errInfo(err)}
	}
	if req.Raw != nil {
		if _, err := stmt.Raw(*req.Raw); err != nil {
			return types.GeneralResponse{Error: errInfo(err)}
		}
	}
	if req.Pluck != nil {
		stmt.Pluck(*req.Pluck)
	}
	if req.SafeIntegers != nil {
		stmt.SafeIntegers(*req.SafeIntegers)
	}
	if req.Timing != nil {
		stmt.Timing(*req.Timing)
	}
	return types.GeneralResponse{}
}

func (h *SQLHost) handleColumns(req *types.Request) types.ColumnsResponse {
	stmt, err := h.lookupStmt(req.StmtID)
	if err != nil {
		return types.ColumnsResponse{Error: errInfo(err)}
	}
	meta, err := stmt.Columns()
	if err != nil {
		return types.ColumnsResponse{Error: errInfo(err)}
	}
	cols := make([]types.ColumnInfo, len(meta))
	for i, m := range meta {
		cols[i] = types.ColumnInfo{
			Name:     m.Name,
			Column:   m.Column,
			Table:    m.Table,
			Database: m.Database,
			Type:     m.Type,
		}
	}
	return types.ColumnsResponse{Columns: cols}
}

func (h *SQLHost) handleInTransaction(req *types.Request) types.StateResponse {
	db, err := h.lookupDB(req.DBID)
	if err != nil {
		return types.StateResponse{Error: errInfo(err)}
	}
	return types.StateResponse{Value: db.InTransaction()}
}

func (h *SQLHost) handleInterrupt(req *types.Request) types.GeneralResponse {
	db, err := h.lookupDB(req.DBID)
	if err != nil {
		return types.GeneralResponse{Error: errInfo(err)}
	}
	db.Interrupt()
	return types.GeneralResponse{}
}

func (h *SQLHost) handleSync(req *types.Request) types.GeneralResponse {
	db, err := h.lookupDB(req.DBID)
	if err != nil {
		return types.GeneralResponse{Error: errInfo(err)}
	}
	_, err = db.Sync()
	return types.GeneralResponse{Error: errInfo(err)}
}

func (h *SQLHost) handleAuthorizer(req *types.Request) types.GeneralResponse {
	db, err := h.lookupDB(req.DBID)
	if err != nil {
		return types.GeneralResponse{Error: errInfo(err)}
	}
	var rules map[string]engine.Authorization
	if req.Rules != nil {
		rules = make(map[string]engine.Authorization, len(req.Rules))
		for table, v := range req.Rules {
			rules[table] = engine.Authorization(v)
		}
	}
	return types.GeneralResponse{Error: errInfo(db.SetAuthorizer(rules))}
}

// decodeArgs converts the request's arguments to host values. Named and
// positional arguments are mutually exclusive; named wins when present.
func decodeArgs(req *types.Request) ([]any, error) {
	if req.Named != nil {
		named := make(map[string]any, len(req.Named))
		for k, v := range req.Named {
			dv, err := decodeValue(v)
			if err != nil {
				return nil, err
			}
			named[k] = dv
		}
		return []any{named}, nil
	}
	if len(req.Args) == 0 {
		return nil, nil
	}
	args := make([]any, len(req.Args))
	for i, v := range req.Args {
		dv, err := decodeValue(v)
		if err != nil {
			return nil, err
		}
		args[i] = dv
	}
	// A single slice argument would be re-classified; keep it positional.
	return args, nil
}

// decodeValue maps one JSON argument to a host value. Blobs arrive as
// {"$blob": "<base64>"}; everything else is a JSON native.
func decodeValue(v any) (any, error) {
	if m, ok := v.(map[string]any); ok {
		enc, ok := m["$blob"].(string)
		if !ok {
			return nil, fmt.Errorf("unsupported argument object: %v", m)
		}
		raw, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("decoding blob argument: %w", err)
		}
		return raw, nil
	}
	return v, nil
}

// encodeValue makes a projected row JSON-safe: blob columns become
// {"$blob": "<base64>"} wrappers, containers are walked recursively.
func encodeValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return map[string]any{"$blob": base64.StdEncoding.EncodeToString(x)}
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = encodeValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = encodeValue(e)
		}
		return out
	default:
		return v
	}
}
