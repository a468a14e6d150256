// Package driver is the guest-side client for the SQL proxy protocol. It
// lets Go code compiled for a WebAssembly System Interface (WASI) module use
// a database owned by the host process.
//
// The guest never holds database objects, only UUID handle strings minted by
// the host registry. Every operation serializes a JSON request, hands it to
// the host through the CallHost function, and decodes the JSON response.
//
// Usage:
//
//  1. Before any database operation, the guest must set the CallHost
//     variable. This function carries the actual payload across the module
//     boundary; the host wires it to its SQLHost registry.
//
//     driver.SetHostHandler(func(requestPayload []byte) ([]byte, error) {
//     // ... send requestPayload to the host, return its response ...
//     })
//
//  2. Open a database and use it:
//
//     db, err := driver.Open(":memory:")
//     stmt, err := db.Prepare("SELECT name FROM users WHERE id = ?")
//     value, found, err := stmt.Pluck().Get(1)
//
// Blob values cross the boundary base64-encoded; the driver wraps and
// unwraps them so guests see []byte on both sides.
//
// Limitations:
//
//   - The guest relies entirely on the host for execution, locking and
//     transaction integrity.
//   - Interrupt only takes effect for operations running on the host at the
//     time of the call.
package driver
