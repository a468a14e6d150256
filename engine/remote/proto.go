package remote

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/tomyedwab/sqlbridge/engine"
)

// Wire types for the pipeline endpoint. Integers travel as decimal strings
// so 64-bit values survive JSON number parsing; blobs travel as base64.

type pipelineRequest struct {
	Baton    string          `json:"baton,omitempty"`
	Requests []streamRequest `json:"requests"`
}

type streamRequest struct {
	Type string     `json:"type"`
	Stmt *protoStmt `json:"stmt,omitempty"`
	SQL  string     `json:"sql,omitempty"`
}

type protoStmt struct {
	SQL       string          `json:"sql"`
	Args      []protoValue    `json:"args,omitempty"`
	NamedArgs []protoNamedArg `json:"named_args,omitempty"`
	WantRows  bool            `json:"want_rows"`
}

type protoNamedArg struct {
	Name  string     `json:"name"`
	Value protoValue `json:"value"`
}

type protoValue struct {
	Type   string `json:"type"`
	Value  any    `json:"value,omitempty"`
	Base64 string `json:"base64,omitempty"`
}

type pipelineResponse struct {
	Baton   string         `json:"baton"`
	BaseURL string         `json:"base_url"`
	Results []streamResult `json:"results"`
}

type streamResult struct {
	Type     string          `json:"type"`
	Response *streamResponse `json:"response,omitempty"`
	Error    *protoError     `json:"error,omitempty"`
}

type streamResponse struct {
	Type         string          `json:"type"`
	Result       *executeResult  `json:"result,omitempty"`
	Describe     *describeResult `json:"describe_result,omitempty"`
	IsAutocommit bool            `json:"is_autocommit,omitempty"`
}

type executeResult struct {
	Cols             []protoCol     `json:"cols"`
	Rows             [][]protoValue `json:"rows"`
	AffectedRowCount int64          `json:"affected_row_count"`
	LastInsertRowID  *string        `json:"last_insert_rowid"`
	ReplicationIndex *string        `json:"replication_index"`
}

type describeResult struct {
	Params     []protoParam `json:"params"`
	Cols       []protoCol   `json:"cols"`
	IsExplain  bool         `json:"is_explain"`
	IsReadonly bool         `json:"is_readonly"`
}

type protoParam struct {
	Name string `json:"name"`
}

type protoCol struct {
	Name     string `json:"name"`
	DeclType string `json:"decltype"`
}

type protoError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e *protoError) toEngine() *engine.Error {
	code := e.Code
	if code == "" {
		code = "SQLITE_ERROR"
	}
	return &engine.Error{
		Message: e.Message,
		Code:    code,
		RawCode: engine.RawCode(code),
	}
}

func valueToProto(v engine.Value) protoValue {
	switch v.Type {
	case engine.TypeInteger:
		return protoValue{Type: "integer", Value: strconv.FormatInt(v.Int, 10)}
	case engine.TypeReal:
		return protoValue{Type: "float", Value: v.Float}
	case engine.TypeText:
		return protoValue{Type: "text", Value: v.Text}
	case engine.TypeBlob:
		return protoValue{Type: "blob", Base64: base64.StdEncoding.EncodeToString(v.Blob)}
	default:
		return protoValue{Type: "null"}
	}
}

func valueFromProto(pv protoValue) (engine.Value, error) {
	switch pv.Type {
	case "null":
		return engine.Null(), nil
	case "integer":
		s, ok := pv.Value.(string)
		if !ok {
			return engine.Value{}, fmt.Errorf("integer value is %T, not string", pv.Value)
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return engine.Value{}, fmt.Errorf("parsing integer %q: %w", s, err)
		}
		return engine.Integer(n), nil
	case "float":
		f, ok := pv.Value.(float64)
		if !ok {
			return engine.Value{}, fmt.Errorf("float value is %T, not number", pv.Value)
		}
		return engine.Real(f), nil
	case "text":
		s, ok := pv.Value.(string)
		if !ok {
			return engine.Value{}, fmt.Errorf("text value is %T, not string", pv.Value)
		}
		return engine.Text(s), nil
	case "blob":
		raw, err := base64.StdEncoding.DecodeString(pv.Base64)
		if err != nil {
			return engine.Value{}, fmt.Errorf("decoding blob: %w", err)
		}
		return engine.Value{Type: engine.TypeBlob, Blob: raw}, nil
	default:
		return engine.Value{}, fmt.Errorf("unknown value type %q", pv.Type)
	}
}

func parseRowID(s *string) (int64, bool) {
	if s == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(*s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseFrameNo(s *string) (uint64, bool) {
	if s == nil {
		return 0, false
	}
	n, err := strconv.ParseUint(*s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
