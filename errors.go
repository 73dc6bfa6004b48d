package diffsum

import "errors"

// Exported errors for library consumers.
var (
	// ErrNoDatabase indicates no audit database was configured.
	ErrNoDatabase = errors.New("diffsum: no database configured")

	// ErrNoProvider indicates no text generation backend was configured.
	ErrNoProvider = errors.New("diffsum: no text generation provider configured")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("diffsum: client is closed")
)
