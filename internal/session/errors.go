package session

import "errors"

// ErrStartFailure indicates the capture subprocess exited abnormally within
// the grace window after spawn, or produced a missing/empty output file.
// Fatal to the attempt; never silently retried.
var ErrStartFailure = errors.New("audio capture failed")
