package database

import (
	"github.com/tomyedwab/sqlbridge/bridge"
	"github.com/tomyedwab/sqlbridge/engine"
)

// Authorization verdicts for SetAuthorizer rules.
const (
	Allow = engine.Allow
	Deny  = engine.Deny
)

// SetAuthorizer installs table-level access rules on the handle. Rules map
// table names to a verdict; statements compiled after this call are checked
// against them. A table with no rule is denied, plain SELECT machinery is
// allowed, and environment-level actions (pragmas, transactions, attach,
// functions, virtual tables) are denied outright. Passing nil removes the
// rules.
func (db *DB) SetAuthorizer(rules map[string]engine.Authorization) error {
	conn, err := db.guard()
	if err != nil {
		return err
	}
	if rules == nil {
		return bridge.Do2(db.disp, func() error { return conn.SetAuthorizer(nil) })
	}
	// Copy so later mutation of the caller's map cannot change the rules
	// mid-flight.
	frozen := make(map[string]engine.Authorization, len(rules))
	for table, v := range rules {
		if v != engine.Allow && v != engine.Deny {
			return engine.Errorf(1, "Invalid authorization rule value '%d' for table '%s'. Expected 0 (ALLOW) or 1 (DENY).", int(v), table)
		}
		frozen[table] = v
	}
	auth := &tableAuthorizer{rules: frozen}
	return bridge.Do2(db.disp, func() error { return conn.SetAuthorizer(auth) })
}

type tableAuthorizer struct {
	rules map[string]engine.Authorization
}

func (a *tableAuthorizer) Authorize(action engine.Action) engine.Authorization {
	switch action.Op {
	case engine.OpCreateIndex, engine.OpCreateTable,
		engine.OpCreateTempIndex, engine.OpCreateTempTable,
		engine.OpCreateTempTrigger, engine.OpCreateTrigger,
		engine.OpDelete, engine.OpDropIndex, engine.OpDropTable,
		engine.OpDropTempIndex, engine.OpDropTempTable,
		engine.OpDropTempTrigger, engine.OpInsert, engine.OpRead,
		engine.OpUpdate, engine.OpAlterTable:
		return a.authorizeTable(action.Table)
	case engine.OpSelect:
		return engine.Allow
	default:
		return engine.Deny
	}
}

func (a *tableAuthorizer) authorizeTable(table string) engine.Authorization {
	if v, ok := a.rules[table]; ok {
		return v
	}
	return engine.Deny
}
