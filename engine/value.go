package engine

import "fmt"

// Type enumerates the storage classes an engine value can have.
type Type int

const (
	TypeNull Type = iota
	TypeInteger
	TypeReal
	TypeText
	TypeBlob
)

func (t Type) String() string {
	switch t {
	case TypeNull:
		return "NULL"
	case TypeInteger:
		return "INTEGER"
	case TypeReal:
		return "REAL"
	case TypeText:
		return "TEXT"
	case TypeBlob:
		return "BLOB"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Value is the engine's typed value union. Exactly one of the payload fields
// is meaningful, selected by Type.
type Value struct {
	Type  Type
	Int   int64
	Float float64
	Text  string
	Blob  []byte
}

// Null returns the NULL value.
func Null() Value { return Value{Type: TypeNull} }

// Integer returns a 64-bit signed integer value.
func Integer(v int64) Value { return Value{Type: TypeInteger, Int: v} }

// Real returns a double-precision float value.
func Real(v float64) Value { return Value{Type: TypeReal, Float: v} }

// Text returns a text value.
func Text(s string) Value { return Value{Type: TypeText, Text: s} }

// Blob returns a blob value. The byte slice is copied so later mutation of
// the caller's buffer cannot reach the engine.
func Blob(b []byte) Value {
	c := make([]byte, len(b))
	copy(c, b)
	return Value{Type: TypeBlob, Blob: c}
}

func (v Value) String() string {
	switch v.Type {
	case TypeNull:
		return "NULL"
	case TypeInteger:
		return fmt.Sprintf("%d", v.Int)
	case TypeReal:
		return fmt.Sprintf("%g", v.Float)
	case TypeText:
		return v.Text
	case TypeBlob:
		return fmt.Sprintf("blob(%d bytes)", len(v.Blob))
	}
	return fmt.Sprintf("Value(%d)", int(v.Type))
}

// NamedValue is a value bound to a declared parameter name. The name carries
// its leading sigil (':', '@' or '$') exactly as the statement declares it.
type NamedValue struct {
	Name  string
	Value Value
}
