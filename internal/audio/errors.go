package audio

import "errors"

// ErrNoDevices indicates device enumeration returned nothing usable.
var ErrNoDevices = errors.New("no audio input devices found")

// ErrNoWorkingFormat indicates a device accepts none of the known input address syntaxes.
var ErrNoWorkingFormat = errors.New("no working input format for device")
