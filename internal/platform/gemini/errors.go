package gemini

import "errors"

// Error definitions for the gemini package.
var (
	// ErrEmptyDocumentText is returned when there is no text to summarize.
	ErrEmptyDocumentText = errors.New("document text cannot be empty")

	// ErrEmptyScript is returned when the script has no speakable turns.
	ErrEmptyScript = errors.New("script has no speakable turns")
)
