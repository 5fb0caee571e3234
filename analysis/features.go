package analysis

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"stutter-detection/dsp"
)

const (
	melBands       = 128
	fftSize        = 2048
	hopSize        = 512
	melMinFreq     = 50.0
	preemphasisMul = 0.97
)

// FeatureExtractor turns raw window samples into the fixed-size dB-scaled
// mel spectrogram the classifier expects.
type FeatureExtractor struct {
	cfg    Config
	logger *slog.Logger
}

func NewFeatureExtractor(cfg Config, logger *slog.Logger) *FeatureExtractor {
	return &FeatureExtractor{cfg: cfg, logger: logger}
}

// Extract computes a (TargetHeight x TargetWidth) mel spectrogram in decibels.
// The samples are resampled to the analysis rate and clipped to the segment
// duration first. Pre-emphasis failure is logged and skipped rather than
// failing the window.
func (e *FeatureExtractor) Extract(samples []float64, sampleRate int) (*mat.Dense, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: empty window", ErrFeature)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate %d", ErrFeature, sampleRate)
	}

	resampled, err := dsp.Resample(samples, sampleRate, e.cfg.AnalysisRate)
	if err != nil {
		return nil, fmt.Errorf("%w: resample: %v", ErrFeature, err)
	}

	maxSamples := int(e.cfg.SegmentDuration * float64(e.cfg.AnalysisRate))
	if len(resampled) > maxSamples {
		resampled = resampled[:maxSamples]
	}

	emphasized, err := dsp.Preemphasis(resampled, preemphasisMul)
	if err != nil {
		e.logger.Warn("pre-emphasis failed, using raw samples", slog.Any("error", err))
		emphasized = resampled
	}

	melSpec, err := dsp.MelSpectrogram(
		emphasized, e.cfg.AnalysisRate,
		melBands, fftSize, hopSize,
		melMinFreq, float64(e.cfg.AnalysisRate)/2,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: mel spectrogram: %v", ErrFeature, err)
	}

	dbSpec, err := dsp.PowerToDB(melSpec, 80)
	if err != nil {
		return nil, fmt.Errorf("%w: db conversion: %v", ErrFeature, err)
	}

	resized, err := dsp.ResizeBilinear(dbSpec, e.cfg.TargetHeight, e.cfg.TargetWidth)
	if err != nil {
		return nil, fmt.Errorf("%w: resize: %v", ErrFeature, err)
	}
	return resized, nil
}
