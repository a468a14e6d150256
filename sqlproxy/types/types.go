package types

// --- JSON structures for host communication ---

// Request is one guest-to-host command. Handle fields are UUID strings
// minted by the host; a request carries only the handles its command needs.
type Request struct {
	Command string `json:"command"`

	// open
	Path      string `json:"path,omitempty"`
	AuthToken string `json:"auth_token,omitempty"`
	SyncURL   string `json:"sync_url,omitempty"`
	TimeoutMS int64  `json:"timeout_ms,omitempty"`
	Cipher    string `json:"cipher,omitempty"`
	CipherKey string `json:"cipher_key,omitempty"`

	// statement and iterator commands
	DBID   string         `json:"db_id,omitempty"`
	StmtID string         `json:"stmt_id,omitempty"`
	RowsID string         `json:"rows_id,omitempty"`
	SQL    string         `json:"sql,omitempty"`
	Args   []any          `json:"args,omitempty"`
	Named  map[string]any `json:"named,omitempty"`

	// mode: nil leaves the toggle unchanged
	Raw          *bool `json:"raw,omitempty"`
	Pluck        *bool `json:"pluck,omitempty"`
	SafeIntegers *bool `json:"safe_integers,omitempty"`
	Timing       *bool `json:"timing,omitempty"`

	// authorizer: table name to verdict, 0 allow / 1 deny; null clears
	Rules map[string]int `json:"rules,omitempty"`
}

// ErrorInfo carries a failure across the boundary with its symbolic code
// intact, so guests can branch on codes instead of message text.
type ErrorInfo struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	RawCode int    `json:"raw_code,omitempty"`
}

// GeneralResponse answers commands that only mint or release a handle.
type GeneralResponse struct {
	DBID   string     `json:"db_id,omitempty"`
	StmtID string     `json:"stmt_id,omitempty"`
	Error  *ErrorInfo `json:"error,omitempty"`
}

// RunResponse answers the run command.
type RunResponse struct {
	Changes         int64      `json:"changes"`
	LastInsertRowID int64      `json:"last_insert_rowid"`
	DurationMS      float64    `json:"duration_ms"`
	Error           *ErrorInfo `json:"error,omitempty"`
}

// RowResponse answers get and next. Row is the projected row in the
// statement's current modes; blob columns come back base64-encoded under a
// {"$blob": ...} wrapper so they survive JSON.
type RowResponse struct {
	Row   any        `json:"row,omitempty"`
	Found bool       `json:"found"`
	Done  bool       `json:"done,omitempty"`
	Error *ErrorInfo `json:"error,omitempty"`
}

// RowsResponse answers the rows command.
type RowsResponse struct {
	RowsID  string     `json:"rows_id,omitempty"`
	Columns []string   `json:"columns,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ColumnsResponse answers the columns command.
type ColumnsResponse struct {
	Columns []ColumnInfo `json:"columns"`
	Error   *ErrorInfo   `json:"error,omitempty"`
}

// ColumnInfo mirrors statement column metadata.
type ColumnInfo struct {
	Name     string `json:"name"`
	Column   string `json:"column,omitempty"`
	Table    string `json:"table,omitempty"`
	Database string `json:"database,omitempty"`
	Type     string `json:"type,omitempty"`
}

// StateResponse answers boolean handle queries such as in_transaction.
type StateResponse struct {
	Value bool       `json:"value"`
	Error *ErrorInfo `json:"error,omitempty"`
}
