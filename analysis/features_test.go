package analysis

import (
	"errors"
	"math"
	"testing"
)

func toneSamples(ms, rate int, freq float64) []float64 {
	samples := make([]float64, ms*rate/1000)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return samples
}

func TestExtractFixedOutputShape(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	extractor := NewFeatureExtractor(cfg, testLogger())

	// window lengths from the padding rules: minimum, natural, and full
	for _, ms := range []int{1000, 2000, 3000} {
		spec, err := extractor.Extract(toneSamples(ms, testRate, 220), testRate)
		if err != nil {
			t.Fatalf("Extract(%dms) returned error: %v", ms, err)
		}
		rows, cols := spec.Dims()
		if rows != cfg.TargetHeight || cols != cfg.TargetWidth {
			t.Fatalf("Extract(%dms) produced %dx%d, want %dx%d",
				ms, rows, cols, cfg.TargetHeight, cfg.TargetWidth)
		}
	}
}

func TestExtractResamplesForeignRate(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	extractor := NewFeatureExtractor(cfg, testLogger())

	spec, err := extractor.Extract(toneSamples(3000, 44100, 220), 44100)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	rows, cols := spec.Dims()
	if rows != cfg.TargetHeight || cols != cfg.TargetWidth {
		t.Fatalf("expected %dx%d, got %dx%d", cfg.TargetHeight, cfg.TargetWidth, rows, cols)
	}
}

func TestExtractDecibelRange(t *testing.T) {
	t.Parallel()

	extractor := NewFeatureExtractor(DefaultConfig(), testLogger())
	spec, err := extractor.Extract(toneSamples(3000, testRate, 220), testRate)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}

	rows, cols := spec.Dims()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := spec.At(r, c)
			if v > 1e-9 || v < -80.0-1e-9 {
				t.Fatalf("value %f at (%d,%d) outside [-80, 0]", v, r, c)
			}
		}
	}
}

func TestExtractEmptyInput(t *testing.T) {
	t.Parallel()

	extractor := NewFeatureExtractor(DefaultConfig(), testLogger())
	if _, err := extractor.Extract(nil, testRate); !errors.Is(err, ErrFeature) {
		t.Fatalf("expected ErrFeature for empty input, got %v", err)
	}
	if _, err := extractor.Extract([]float64{0.1}, 0); !errors.Is(err, ErrFeature) {
		t.Fatalf("expected ErrFeature for zero sample rate, got %v", err)
	}
}
