package telemetry

import "errors"

var (
	// ErrUpstreamFetch marks a failed or timed out call to the export API.
	ErrUpstreamFetch = errors.New("telemetry: upstream fetch failed")
	// ErrValidation marks a rejected request.
	ErrValidation = errors.New("telemetry: validation failed")
	// ErrStore marks a storage connectivity or write failure.
	ErrStore = errors.New("telemetry: store failure")
	// ErrInvalidWindow indicates start is not before end.
	ErrInvalidWindow = errors.New("telemetry: start must be before end")
	// ErrUnknownResolution indicates a resolution outside hourly/daily.
	ErrUnknownResolution = errors.New("telemetry: unknown resolution")
)
