package transcribe

import "errors"

// ErrTranscription indicates the speech-to-text request failed.
var ErrTranscription = errors.New("transcription failed")
