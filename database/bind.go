package database

import (
	"strings"

	"github.com/tomyedwab/sqlbridge/engine"
)

// bindArgs classifies the caller's arguments and binds them to stmt.
//
// One map argument binds by name: each declared parameter looks its value
// up under the declared name with the sigil stripped, or under the exact
// declared name. Map keys matching no declared parameter are ignored.
// One slice argument, or several arguments, bind positionally. A single
// scalar binds to the first slot.
func bindArgs(stmt engine.Stmt, args []any) error {
	if len(args) == 0 {
		return nil
	}
	if len(args) == 1 {
		switch x := args[0].(type) {
		case map[string]any:
			return bindNamed(stmt, x)
		case []any:
			return bindPositional(stmt, x)
		}
	}
	return bindPositional(stmt, args)
}

func bindPositional(stmt engine.Stmt, args []any) error {
	if len(args) > stmt.ParamCount() {
		return &engine.BindError{Message: "Too many parameter values were provided"}
	}
	vals := make([]engine.Value, len(args))
	for i, a := range args {
		v, err := toEngineValue(a)
		if err != nil {
			return err
		}
		vals[i] = v
	}
	return stmt.BindPositional(vals)
}

func bindNamed(stmt engine.Stmt, args map[string]any) error {
	count := stmt.ParamCount()
	named := make([]engine.NamedValue, 0, count)
	for slot := 1; slot <= count; slot++ {
		name := stmt.ParamName(slot)
		if name == "" {
			continue
		}
		raw, ok := args[strings.TrimLeft(name, ":@$")]
		if !ok {
			raw, ok = args[name]
		}
		if !ok {
			continue
		}
		v, err := toEngineValue(raw)
		if err != nil {
			return err
		}
		named = append(named, engine.NamedValue{Name: name, Value: v})
	}
	return stmt.BindNamed(named)
}
