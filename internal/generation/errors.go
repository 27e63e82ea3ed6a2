package generation

import "errors"

// Common errors returned by the generation package
var (
	// ErrGenerationFailed is returned when generation fails for any general reason
	ErrGenerationFailed = errors.New("generation failed")

	// ErrInvalidResponse is returned when the upstream response cannot be parsed or is malformed
	ErrInvalidResponse = errors.New("invalid response from upstream service")

	// ErrContentBlocked is returned when the LLM blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry
	ErrTransientFailure = errors.New("transient error during generation")

	// ErrInvalidConfig is returned when an operation's configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")

	// ErrInvalidParams is returned when launch parameters are not accepted by the task type
	ErrInvalidParams = errors.New("invalid generation parameters")

	// ErrEmptyInput is returned when the operation has nothing to work from
	ErrEmptyInput = errors.New("generation input is empty")

	// ErrNoOperation is returned when no operation is registered for a task type
	ErrNoOperation = errors.New("no operation registered for task type")
)
