package analysis

import "errors"

// Sentinel errors for the analysis pipeline. Callers classify failures with
// errors.Is; stage code wraps these with fmt.Errorf("%w: ...") detail.
var (
	// ErrValidation flags bad configuration or parameters at construction.
	ErrValidation = errors.New("validation error")
	// ErrNotFound flags a missing input or model file.
	ErrNotFound = errors.New("not found")
	// ErrPermission flags an unreadable or unwritable path.
	ErrPermission = errors.New("permission denied")
	// ErrDecode flags a waveform that could not be loaded.
	ErrDecode = errors.New("decode error")
	// ErrEmptyInput flags zero-duration audio.
	ErrEmptyInput = errors.New("empty input")
	// ErrFeature flags invalid spectrogram dimensions or scale factors.
	ErrFeature = errors.New("feature extraction error")
	// ErrClassifier flags a model load or inference failure.
	ErrClassifier = errors.New("classifier error")
	// ErrAggregation flags a failure while fusing window results.
	ErrAggregation = errors.New("aggregation error")
	// ErrCancelled flags a run stopped by the caller or host.
	ErrCancelled = errors.New("analysis cancelled")
	// ErrResourceExhausted flags an out-of-resources abort.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrNoResults flags a run in which no window produced a prediction.
	ErrNoResults = errors.New("no segments produced predictions")
)
