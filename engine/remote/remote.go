package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomyedwab/sqlbridge/engine"
)

// Engine connects to a hosted database over its HTTP pipeline endpoint.
type Engine struct {
	endpoint  string
	authToken string
	client    *http.Client

	repl     atomic.Uint64
	replSeen atomic.Bool
}

// New builds a remote engine for the given URL. The libsql scheme is an
// alias for https.
func New(rawURL, authToken string) *Engine {
	url := rawURL
	if strings.HasPrefix(url, "libsql://") {
		url = "https://" + strings.TrimPrefix(url, "libsql://")
	}
	url = strings.TrimSuffix(url, "/")
	return &Engine{
		endpoint:  url + "/v3/pipeline",
		authToken: authToken,
		client:    &http.Client{},
	}
}

func (e *Engine) Connect() (engine.Conn, error) {
	return &Conn{eng: e}, nil
}

func (e *Engine) Sync(ctx context.Context) (engine.SyncResult, error) {
	return engine.SyncResult{}, engine.Errorf(1, "sync is only supported on a database opened with a sync URL")
}

func (e *Engine) SyncUntil(ctx context.Context, frameNo uint64) (engine.SyncResult, error) {
	return engine.SyncResult{}, engine.Errorf(1, "sync is only supported on a database opened with a sync URL")
}

// MaxWriteReplicationIndex reports the highest replication index any write
// through this engine has observed from the server.
func (e *Engine) MaxWriteReplicationIndex() (uint64, bool) {
	if !e.replSeen.Load() {
		return 0, false
	}
	return e.repl.Load(), true
}

func (e *Engine) observeReplicationIndex(idx uint64) {
	e.replSeen.Store(true)
	for {
		cur := e.repl.Load()
		if idx <= cur || e.repl.CompareAndSwap(cur, idx) {
			return
		}
	}
}

func (e *Engine) Close() error { return nil }

// Conn is one server-side stream. The baton returned by each response
// routes the next request to the same stream.
type Conn struct {
	eng *Engine

	mu           sync.Mutex
	baton        string
	closed       bool
	changes      int64
	totalChanges int64
	lastRowID    int64
	autocommit   bool
	seenExec     bool

	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

// roundTrip posts one batch of stream requests, updating the baton. The
// caller holds c.mu.
func (c *Conn) roundTrip(ctx context.Context, reqs []streamRequest) ([]streamResult, error) {
	if c.closed {
		return nil, engine.NotOpenError()
	}
	body, err := json.Marshal(pipelineRequest{Baton: c.baton, Requests: reqs})
	if err != nil {
		return nil, fmt.Errorf("encoding pipeline request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancelMu.Lock()
	c.cancel = cancel
	c.cancelMu.Unlock()
	defer func() {
		c.cancelMu.Lock()
		c.cancel = nil
		c.cancelMu.Unlock()
		cancel()
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.eng.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building pipeline request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.eng.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.eng.authToken)
	}

	resp, err := c.eng.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return nil, engine.NewError(9, "interrupted")
		}
		return nil, engine.Errorf(1, "pipeline request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, c.authError(resp)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, engine.Errorf(1, "server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var pr pipelineResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decoding pipeline response: %w", err)
	}
	c.baton = pr.Baton
	if len(pr.Results) != len(reqs) {
		return nil, engine.Errorf(1, "server returned %d results for %d requests", len(pr.Results), len(reqs))
	}
	return pr.Results, nil
}

// authError distinguishes an expired token from other authentication
// failures by inspecting the token's exp claim. The signature is not
// checked; only the server can do that.
func (c *Conn) authError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := strings.TrimSpace(string(msg))
	if c.eng.authToken != "" {
		parser := jwt.NewParser()
		token, _, err := parser.ParseUnverified(c.eng.authToken, jwt.MapClaims{})
		if err == nil {
			if exp, err := token.Claims.GetExpirationTime(); err == nil && exp != nil && exp.Before(time.Now()) {
				return engine.Errorf(23, "authentication token expired at %s", exp.Format(time.RFC3339))
			}
		}
	}
	if detail == "" {
		detail = "authentication failed"
	}
	return engine.NewError(23, detail)
}

// execute ships one statement and refreshes the session's autocommit state
// in the same roundtrip.
func (c *Conn) execute(ctx context.Context, stmt protoStmt) (*executeResult, error) {
	results, err := c.roundTrip(ctx, []streamRequest{
		{Type: "execute", Stmt: &stmt},
		{Type: "get_autocommit"},
	})
	if err != nil {
		return nil, err
	}
	if results[0].Type == "error" && results[0].Error != nil {
		return nil, results[0].Error.toEngine()
	}
	if results[0].Response == nil || results[0].Response.Result == nil {
		return nil, engine.Errorf(1, "server returned no execute result")
	}
	res := results[0].Response.Result

	c.changes = res.AffectedRowCount
	c.totalChanges += res.AffectedRowCount
	if id, ok := parseRowID(res.LastInsertRowID); ok {
		c.lastRowID = id
	}
	if idx, ok := parseFrameNo(res.ReplicationIndex); ok {
		c.eng.observeReplicationIndex(idx)
	}
	if results[1].Type == "ok" && results[1].Response != nil {
		c.autocommit = results[1].Response.IsAutocommit
		c.seenExec = true
	}
	return res, nil
}

func (c *Conn) Prepare(ctx context.Context, sql string) (engine.Stmt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	results, err := c.roundTrip(ctx, []streamRequest{{Type: "describe", SQL: sql}})
	if err != nil {
		return nil, err
	}
	if results[0].Type == "error" && results[0].Error != nil {
		return nil, results[0].Error.toEngine()
	}
	if results[0].Response == nil || results[0].Response.Describe == nil {
		return nil, engine.Errorf(1, "server returned no describe result")
	}
	desc := results[0].Response.Describe
	return &Stmt{c: c, sql: sql, desc: *desc}, nil
}

func (c *Conn) ExecBatch(ctx context.Context, script string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	results, err := c.roundTrip(ctx, []streamRequest{{Type: "sequence", SQL: script}})
	if err != nil {
		return err
	}
	if results[0].Type == "error" && results[0].Error != nil {
		return results[0].Error.toEngine()
	}
	return nil
}

func (c *Conn) Changes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changes
}

func (c *Conn) TotalChanges() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalChanges
}

func (c *Conn) LastInsertRowID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRowID
}

func (c *Conn) Autocommit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.seenExec {
		return true
	}
	return c.autocommit
}

func (c *Conn) SetBusyTimeout(d time.Duration) error {
	// Lock handling happens server-side.
	return nil
}

func (c *Conn) SetAuthorizer(auth engine.Authorizer) error {
	return engine.Errorf(1, "authorization rules are not supported on a remote database")
}

func (c *Conn) LoadExtension(path, entryPoint string) error {
	return engine.Errorf(1, "extension loading is not supported on a remote database")
}

// Interrupt aborts the in-flight request, if any. The stream itself stays
// usable.
func (c *Conn) Interrupt() {
	c.cancelMu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancelMu.Unlock()
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	// Best effort; the server reaps abandoned streams on its own.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.roundTrip(ctx, []streamRequest{{Type: "close"}})
	c.closed = true
	return nil
}
