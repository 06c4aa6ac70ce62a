// Package logs reads the daemon log file for `aveline logs`.
//
// Reads are offset based so a follower can resume exactly where the previous
// call stopped; a negative offset asks for the last N lines instead.
package logs
