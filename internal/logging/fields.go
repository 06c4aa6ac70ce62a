package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType names the event a log line describes (book_imported, server_started, ...).
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to try next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldBookKey is the generated unique key of a library book.
	FieldBookKey = "book_key"
	// FieldBookPath is the absolute path of an EPUB file.
	FieldBookPath = "book_path"
	// FieldRequestID correlates log lines emitted while serving one IPC request.
	FieldRequestID = "request_id"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)
