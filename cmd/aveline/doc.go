// Command aveline manages the e-book library daemon and acts as a reference
// reading client: it imports EPUB files, lists the library, opens books over
// the loopback file server, and records reading progress.
package main
