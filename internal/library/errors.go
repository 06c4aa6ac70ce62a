package library

import "errors"

var (
	// ErrInvalidInput reports a request rejected before any filesystem change.
	ErrInvalidInput = errors.New("invalid input")
	// ErrImportFailed reports an I/O or parse failure during import.
	ErrImportFailed = errors.New("import failed")
	// ErrBookNotFound reports a key with no matching sidecar.
	ErrBookNotFound = errors.New("book not found")
)
