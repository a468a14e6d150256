package database

import (
	"math"
	"math/big"

	"github.com/tomyedwab/sqlbridge/engine"
)

// toEngineValue converts one host value into an engine value. The accepted
// kinds are deliberately narrow; anything else is a binding error, not a
// best-effort coercion.
func toEngineValue(v any) (engine.Value, error) {
	switch x := v.(type) {
	case nil:
		return engine.Null(), nil
	case bool:
		if x {
			return engine.Integer(1), nil
		}
		return engine.Integer(0), nil
	case int:
		return engine.Integer(int64(x)), nil
	case int8:
		return engine.Integer(int64(x)), nil
	case int16:
		return engine.Integer(int64(x)), nil
	case int32:
		return engine.Integer(int64(x)), nil
	case int64:
		return engine.Integer(x), nil
	case uint:
		return uintValue(uint64(x))
	case uint8:
		return engine.Integer(int64(x)), nil
	case uint16:
		return engine.Integer(int64(x)), nil
	case uint32:
		return engine.Integer(int64(x)), nil
	case uint64:
		return uintValue(x)
	case float32:
		return engine.Real(float64(x)), nil
	case float64:
		return engine.Real(x), nil
	case string:
		return engine.Text(x), nil
	case []byte:
		return engine.Blob(x), nil
	case *big.Int:
		if x == nil {
			return engine.Null(), nil
		}
		if !x.IsInt64() {
			return engine.Value{}, &engine.BindError{
				Message: "BigInt is too large to be represented as a 64-bit integer",
			}
		}
		return engine.Integer(x.Int64()), nil
	default:
		return engine.Value{}, &engine.BindError{
			Message: "SQLite3 can only bind numbers, strings, bigints, buffers, and null",
		}
	}
}

func uintValue(x uint64) (engine.Value, error) {
	if x > math.MaxInt64 {
		return engine.Value{}, &engine.BindError{
			Message: "BigInt is too large to be represented as a 64-bit integer",
		}
	}
	return engine.Integer(int64(x)), nil
}

// fromEngineValue converts one engine value into its host representation.
// Integers decode as int64 under safe-integer mode and as float64
// otherwise, mirroring the handle's configured numeric surface.
func fromEngineValue(v engine.Value, safeInts bool) any {
	switch v.Type {
	case engine.TypeInteger:
		if safeInts {
			return v.Int
		}
		return float64(v.Int)
	case engine.TypeReal:
		return v.Float
	case engine.TypeText:
		return v.Text
	case engine.TypeBlob:
		out := make([]byte, len(v.Blob))
		copy(out, v.Blob)
		return out
	default:
		return nil
	}
}
