// Package remote speaks the sqld HTTP pipeline protocol to a hosted
// database. A session is a server-side stream identified by a baton; every
// request carries the previous response's baton so the server can route the
// session to the same stream, which is what keeps transactions working over
// stateless HTTP.
//
// Statements are not compiled client-side. Prepare issues a describe request
// so parameter and column metadata are available before the first execution,
// and each Exec or Query ships the SQL with its bound arguments.
package remote
