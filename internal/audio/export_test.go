package audio

// Exports for white-box testing from the audio_test package.

var (
	ParseDeviceListing = parseDeviceListing
	FormatCandidates   = formatCandidates
	ParseStreamInfo    = parseStreamInfo
)

// FallbackDeviceIndex exposes the enumeration-failure fallback for tests.
const FallbackDeviceIndex = fallbackDeviceIndex
