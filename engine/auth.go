package engine

// Authorization is the verdict an Authorizer returns for one catalog action.
type Authorization int

const (
	Allow Authorization = 0
	Deny  Authorization = 1
)

// Op enumerates the catalog actions an engine consults the authorizer about
// while compiling a statement.
type Op int

const (
	OpUnknown Op = iota
	OpCreateIndex
	OpCreateTable
	OpCreateTempIndex
	OpCreateTempTable
	OpCreateTempTrigger
	OpCreateTempView
	OpCreateTrigger
	OpCreateView
	OpDelete
	OpDropIndex
	OpDropTable
	OpDropTempIndex
	OpDropTempTable
	OpDropTempTrigger
	OpDropTempView
	OpDropTrigger
	OpDropView
	OpInsert
	OpPragma
	OpRead
	OpSelect
	OpTransaction
	OpUpdate
	OpAttach
	OpDetach
	OpAlterTable
	OpReindex
	OpAnalyze
	OpCreateVtable
	OpDropVtable
	OpFunction
	OpSavepoint
	OpRecursive
)

// Action is one catalog action presented to an Authorizer. Table is empty
// for actions that do not target a table.
type Action struct {
	Op       Op
	Table    string
	Database string
}

// Authorizer decides whether a catalog action may proceed. It is consulted
// synchronously during statement compilation.
type Authorizer interface {
	Authorize(Action) Authorization
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(Action) Authorization

func (f AuthorizerFunc) Authorize(a Action) Authorization { return f(a) }
