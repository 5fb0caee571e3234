package analysis

import "fmt"

// Mode selects how window predictions are turned into events.
type Mode string

const (
	// ModeCoarse emits one event per confident window spanning the whole window.
	ModeCoarse Mode = "coarse"
	// ModePrecise refines confident windows into sub-events with exact timing.
	ModePrecise Mode = "precise"
)

// WindowErrorPolicy controls what happens when a single window fails.
type WindowErrorPolicy string

const (
	// SkipWindow records the failure and continues with the remaining windows.
	SkipWindow WindowErrorPolicy = "skip"
	// AbortRun stops processing at the first failed window.
	AbortRun WindowErrorPolicy = "abort"
)

// Config holds the tunable parameters for a full analysis run.
type Config struct {
	// SegmentDuration is the sliding-window length in seconds.
	SegmentDuration float64
	// MinSegmentDuration is the shortest window accepted for classification,
	// in seconds. Shorter audio is zero-padded up to this length.
	MinSegmentDuration float64
	// OverlapRatio is the fraction of each window shared with the next,
	// in [0, 1).
	OverlapRatio float64
	// AnalysisRate is the sample rate all audio is resampled to before
	// feature extraction.
	AnalysisRate int
	// TargetHeight and TargetWidth fix the spectrogram shape fed to the
	// classifier.
	TargetHeight int
	TargetWidth  int
	// Mode selects coarse or precise event output.
	Mode Mode
	// MinEventConfidence is the floor below which coarse window predictions
	// are dropped from the event list.
	MinEventConfidence float64
	// Concurrency bounds the number of windows processed in parallel.
	Concurrency int
	// OnWindowError selects the per-window failure policy.
	OnWindowError WindowErrorPolicy
}

// DefaultConfig returns the standard analysis parameters.
func DefaultConfig() Config {
	return Config{
		SegmentDuration:    3.0,
		MinSegmentDuration: 1.0,
		OverlapRatio:       0.5,
		AnalysisRate:       22050,
		TargetHeight:       128,
		TargetWidth:        128,
		Mode:               ModeCoarse,
		MinEventConfidence: 0.3,
		Concurrency:        1,
		OnWindowError:      SkipWindow,
	}
}

// Validate checks invariants that would otherwise surface as silent
// mis-segmentation deep in a run.
func (c Config) Validate() error {
	if c.SegmentDuration <= 0 {
		return fmt.Errorf("%w: segment duration must be positive, got %f", ErrValidation, c.SegmentDuration)
	}
	if c.MinSegmentDuration <= 0 || c.MinSegmentDuration > c.SegmentDuration {
		return fmt.Errorf("%w: min segment duration must be in (0, %f], got %f", ErrValidation, c.SegmentDuration, c.MinSegmentDuration)
	}
	if c.OverlapRatio < 0 || c.OverlapRatio >= 1 {
		return fmt.Errorf("%w: overlap ratio must be in [0, 1), got %f", ErrValidation, c.OverlapRatio)
	}
	if c.AnalysisRate <= 0 {
		return fmt.Errorf("%w: analysis rate must be positive, got %d", ErrValidation, c.AnalysisRate)
	}
	if c.TargetHeight <= 0 || c.TargetWidth <= 0 {
		return fmt.Errorf("%w: target size must be positive, got %dx%d", ErrValidation, c.TargetHeight, c.TargetWidth)
	}
	if c.Mode != ModeCoarse && c.Mode != ModePrecise {
		return fmt.Errorf("%w: unknown mode %q", ErrValidation, c.Mode)
	}
	if c.MinEventConfidence < 0 || c.MinEventConfidence > 1 {
		return fmt.Errorf("%w: event confidence threshold must be in [0, 1], got %f", ErrValidation, c.MinEventConfidence)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be at least 1, got %d", ErrValidation, c.Concurrency)
	}
	if c.OnWindowError != SkipWindow && c.OnWindowError != AbortRun {
		return fmt.Errorf("%w: unknown window error policy %q", ErrValidation, c.OnWindowError)
	}
	return nil
}

func (c Config) segmentMs() int    { return int(c.SegmentDuration * 1000) }
func (c Config) minSegmentMs() int { return int(c.MinSegmentDuration * 1000) }
