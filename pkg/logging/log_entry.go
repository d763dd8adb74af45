package logging

// LogEntry represents a single structured log record.
type LogEntry struct {
	Time     int64
	Severity Severity
	Message  string
	File     string
	Line     int
	Function string

	// General structured data
	Fields map[string]interface{}
}
