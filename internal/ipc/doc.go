// Package ipc exposes the daemon over JSON-RPC on a Unix domain socket and
// ships the matching client used by the CLI and reading clients.
//
// Every handler answers with a structured outcome. Invalid input and
// not-found conditions are reported inside the response (Success=false plus
// a message); an RPC error means the transport or the daemon itself failed.
package ipc
