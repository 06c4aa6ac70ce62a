package ipc

import (
	"aveline/internal/daemon"
	"aveline/internal/epub"
	"aveline/internal/library"
	"aveline/internal/progress"
)

// Book mirrors the persisted library record.
type Book = library.Book

// ImportResult is the outcome of one import.
type ImportResult = library.Result

// TOCNode is one table of contents entry.
type TOCNode = epub.TOCNode

// ProgressRecord is a saved reading location.
type ProgressRecord = progress.Record

// AddBookRequest imports one EPUB.
type AddBookRequest struct {
	Path string `json:"path"`
}

// AddBookResponse carries the import outcome.
type AddBookResponse struct {
	ImportResult
}

// AddBooksRequest imports several EPUBs concurrently.
type AddBooksRequest struct {
	Paths []string `json:"paths"`
}

// AddBooksResponse holds one result per requested path, in request order.
type AddBooksResponse struct {
	Results []ImportResult `json:"results"`
	Added   int            `json:"added"`
}

// ListLibraryRequest fetches the full library.
type ListLibraryRequest struct{}

// ListLibraryResponse mirrors library.Listing.
type ListLibraryResponse struct {
	Books      []Book `json:"books" yaml:"books"`
	Count      int    `json:"count" yaml:"count"`
	TotalPages int    `json:"totalPages" yaml:"totalPages"`
	Message    string `json:"message,omitempty" yaml:"message,omitempty"`
}

// PickFilesRequest asks for candidate EPUB paths.
type PickFilesRequest struct{}

// PickFilesResponse lists candidate paths.
type PickFilesResponse struct {
	Paths   []string `json:"paths"`
	Message string   `json:"message,omitempty"`
}

// OpenBookRequest opens a book by path or library key.
type OpenBookRequest struct {
	Target string `json:"target"`
}

// OpenBookResponse reports where the reading client can fetch the book.
type OpenBookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	URL     string `json:"url,omitempty"`
	Path    string `json:"path,omitempty"`
	BookKey string `json:"bookKey,omitempty"`
	Title   string `json:"title,omitempty"`
}

// CloseBookRequest stops serving the open book.
type CloseBookRequest struct{}

// CloseBookResponse reports whether a running server was stopped. Closing
// with nothing open is benign: Success=false, NotRunning=true.
type CloseBookResponse struct {
	Success    bool   `json:"success"`
	NotRunning bool   `json:"notRunning,omitempty"`
	Message    string `json:"message"`
}

// BookTOCRequest fetches a book's table of contents.
type BookTOCRequest struct {
	Key string `json:"key"`
}

// BookTOCResponse carries the table of contents.
type BookTOCResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
	Items   []TOCNode `json:"items"`
}

// ReportLocationRequest records the reader's location.
type ReportLocationRequest struct {
	Key  string `json:"key"`
	Href string `json:"href"`
	CFI  string `json:"cfi,omitempty"`
}

// ReportLocationResponse echoes the stored record with its chapter mapping.
type ReportLocationResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Record  *ProgressRecord `json:"record,omitempty"`
}

// ProgressRequest fetches a saved location.
type ProgressRequest struct {
	Key string `json:"key"`
}

// ProgressResponse carries the saved location, nil when the book was never
// reported.
type ProgressResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Record  *ProgressRecord `json:"record,omitempty"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents daemon status information.
type StatusResponse = daemon.Status

// StopRequest asks the daemon process to exit.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// LogTailRequest reads from the daemon log. Offset -1 returns the last Limit
// lines; Follow waits up to WaitMillis for new lines.
type LogTailRequest struct {
	Offset     int64  `json:"offset"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"waitMillis"`
	Match      string `json:"match,omitempty"`
}

// LogTailResponse carries log lines and the offset for the next request.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}
