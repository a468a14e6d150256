package sqlite

import (
	"zombiezen.com/go/sqlite"

	"github.com/tomyedwab/sqlbridge/engine"
)

var opFromSQLite = map[sqlite.OpType]engine.Op{
	sqlite.OpCreateIndex:       engine.OpCreateIndex,
	sqlite.OpCreateTable:       engine.OpCreateTable,
	sqlite.OpCreateTempIndex:   engine.OpCreateTempIndex,
	sqlite.OpCreateTempTable:   engine.OpCreateTempTable,
	sqlite.OpCreateTempTrigger: engine.OpCreateTempTrigger,
	sqlite.OpCreateTempView:    engine.OpCreateTempView,
	sqlite.OpCreateTrigger:     engine.OpCreateTrigger,
	sqlite.OpCreateView:        engine.OpCreateView,
	sqlite.OpDelete:            engine.OpDelete,
	sqlite.OpDropIndex:         engine.OpDropIndex,
	sqlite.OpDropTable:         engine.OpDropTable,
	sqlite.OpDropTempIndex:     engine.OpDropTempIndex,
	sqlite.OpDropTempTable:     engine.OpDropTempTable,
	sqlite.OpDropTempTrigger:   engine.OpDropTempTrigger,
	sqlite.OpDropTempView:      engine.OpDropTempView,
	sqlite.OpDropTrigger:       engine.OpDropTrigger,
	sqlite.OpDropView:          engine.OpDropView,
	sqlite.OpInsert:            engine.OpInsert,
	sqlite.OpPragma:            engine.OpPragma,
	sqlite.OpRead:              engine.OpRead,
	sqlite.OpSelect:            engine.OpSelect,
	sqlite.OpTransaction:       engine.OpTransaction,
	sqlite.OpUpdate:            engine.OpUpdate,
	sqlite.OpAttach:            engine.OpAttach,
	sqlite.OpDetach:            engine.OpDetach,
	sqlite.OpAlterTable:        engine.OpAlterTable,
	sqlite.OpReindex:           engine.OpReindex,
	sqlite.OpAnalyze:           engine.OpAnalyze,
	sqlite.OpCreateVTable:      engine.OpCreateVtable,
	sqlite.OpDropVTable:        engine.OpDropVtable,
	sqlite.OpFunction:          engine.OpFunction,
	sqlite.OpSavepoint:         engine.OpSavepoint,
	sqlite.OpRecursive:         engine.OpRecursive,
}

// connAuthorizer bridges an engine.Authorizer onto the embedded library's
// compile-time authorizer hook.
type connAuthorizer struct {
	auth engine.Authorizer
}

func (a connAuthorizer) Authorize(action sqlite.Action) sqlite.AuthResult {
	op, ok := opFromSQLite[action.Type()]
	if !ok {
		op = engine.OpUnknown
	}
	verdict := a.auth.Authorize(engine.Action{
		Op:       op,
		Table:    action.Table(),
		Database: action.Database(),
	})
	if verdict == engine.Allow {
		return sqlite.AuthResultOK
	}
	return sqlite.AuthResultDeny
}

func (c *Conn) SetAuthorizer(auth engine.Authorizer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return engine.NotOpenError()
	}
	if auth == nil {
		return mapError(c.conn.SetAuthorizer(nil))
	}
	return mapError(c.conn.SetAuthorizer(connAuthorizer{auth: auth}))
}
