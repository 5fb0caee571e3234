package analysis

import (
	"fmt"

	"stutter-detection/wav"
)

// Window is one classification unit cut from the input waveform. StartMs and
// EndMs are positions on the original recording timeline; EndMs reflects the
// effective duration after any padding.
type Window struct {
	Index   int
	StartMs int
	EndMs   int
	Samples []float64
}

// DurationMs returns the effective window length in milliseconds.
func (w Window) DurationMs() int { return w.EndMs - w.StartMs }

// SegmentWaveform cuts the waveform into overlapping windows of
// cfg.SegmentDuration seconds, stepping by SegmentDuration*(1-OverlapRatio).
// Recordings shorter than MinSegmentDuration are zero-padded up to it and
// yield a single window. A trailing window shorter than the segment length is
// padded to the full length only when it covers at least 80% of it; a trailing
// window below the minimum is padded to the minimum.
func SegmentWaveform(wf *wav.Waveform, cfg Config) ([]Window, error) {
	if wf == nil || len(wf.Samples) == 0 {
		return nil, fmt.Errorf("%w: no audio samples", ErrEmptyInput)
	}
	if wf.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate %d", ErrValidation, wf.SampleRate)
	}

	rate := wf.SampleRate
	msToSamples := func(ms int) int { return ms * rate / 1000 }

	samples := wf.Samples
	durationMs := len(samples) * 1000 / rate

	segMs := cfg.segmentMs()
	minMs := cfg.minSegmentMs()

	if durationMs < minMs {
		samples = padTo(samples, msToSamples(minMs))
		durationMs = minMs
	}

	if durationMs <= segMs {
		w := Window{Index: 0, StartMs: 0, EndMs: durationMs, Samples: samples}
		return []Window{padWindow(w, cfg, rate)}, nil
	}

	stepMs := int(float64(segMs) * (1 - cfg.OverlapRatio))
	if stepMs < 1 {
		stepMs = 1
	}
	num := (durationMs-segMs)/stepMs + 1
	if num < 1 {
		num = 1
	}

	windows := make([]Window, 0, num)
	for i := 0; i < num; i++ {
		startMs := i * stepMs
		endMs := startMs + segMs
		if endMs > durationMs {
			endMs = durationMs
		}
		start := msToSamples(startMs)
		end := msToSamples(endMs)
		if end > len(samples) {
			end = len(samples)
		}
		w := Window{
			Index:   i,
			StartMs: startMs,
			EndMs:   endMs,
			Samples: samples[start:end],
		}
		windows = append(windows, padWindow(w, cfg, rate))
	}
	return windows, nil
}

// padWindow applies the per-window padding rules: pad to the minimum length
// when below it, pad to the full segment length when covering at least 80% of
// it, otherwise leave the window at its natural length.
func padWindow(w Window, cfg Config, rate int) Window {
	segMs := cfg.segmentMs()
	minMs := cfg.minSegmentMs()
	naturalMs := w.EndMs - w.StartMs

	switch {
	case naturalMs < minMs:
		w.Samples = padTo(w.Samples, minMs*rate/1000)
		w.EndMs = w.StartMs + minMs
	case naturalMs < segMs && float64(naturalMs) >= 0.8*float64(segMs):
		w.Samples = padTo(w.Samples, segMs*rate/1000)
		w.EndMs = w.StartMs + segMs
	}
	return w
}

func padTo(samples []float64, length int) []float64 {
	if len(samples) >= length {
		return samples
	}
	out := make([]float64, length)
	copy(out, samples)
	return out
}
