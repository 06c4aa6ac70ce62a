// Package daemon coordinates the long-running Aveline host process.
//
// It owns the library store and importer, the book file server, the reading
// progress database and the file picker as injected handles, and holds a
// flock-based lock so only one host serves a data directory at a time. The
// IPC layer calls into Daemon; nothing here knows about the wire format.
package daemon
