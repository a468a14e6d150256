// Package engine defines the contract between the binding layer and the
// underlying SQL engines. The binding never talks to a concrete engine
// directly; it goes through the Engine/Conn/Stmt/Cursor interfaces defined
// here, which are implemented by the embedded engine (engine/sqlite), the
// remote engine (engine/remote), and the replica engine (engine/replica).
//
// The package also defines the typed value union exchanged with engines, the
// structured error type carrying symbolic engine error codes, and the narrow
// collaborator interfaces (Authorizer, Syncer) the binding delegates to.
package engine
