// Package preflight provides readiness checks for the filesystem paths and
// the loopback port Aveline depends on.
//
// The daemon runs RunAll at startup and logs failures without refusing to
// start; "aveline status" renders the same results for the user.
package preflight
