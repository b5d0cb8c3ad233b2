package document

import "errors"

var (
	// ErrEmptyDocument is returned when a source parses to no speakable content.
	ErrEmptyDocument = errors.New("document has no speakable content")
)
