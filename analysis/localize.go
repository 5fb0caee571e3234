package analysis

import "context"

// SubEvent is a refined detection inside a single window. Times are seconds
// relative to the window start.
type SubEvent struct {
	Type       string
	Confidence float64
	StartSec   float64
	EndSec     float64
	Severity   string
}

// Duration returns the sub-event length in seconds.
func (s SubEvent) Duration() float64 { return s.EndSec - s.StartSec }

// Localizer refines a confident window into precisely timed sub-events.
// Implementations receive the window waveform and the window's class
// probabilities to bias their search.
type Localizer interface {
	Localize(ctx context.Context, samples []float64, sampleRate int, probabilities map[string]float64) ([]SubEvent, error)
}
