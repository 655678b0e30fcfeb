package cli

import "errors"

// CLI-specific sentinel errors.

var (
	// ErrAPIKeyMissing indicates OPENAI_API_KEY is not set and transcription was requested.
	ErrAPIKeyMissing = errors.New("OPENAI_API_KEY environment variable not set")

	// ErrNoDevice indicates no usable capture device could be found or negotiated.
	ErrNoDevice = errors.New("no usable audio input device")

	// ErrSelectionAborted indicates the operator cancelled interactive device selection.
	ErrSelectionAborted = errors.New("device selection aborted")
)
