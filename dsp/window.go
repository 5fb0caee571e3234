package dsp

import (
	"errors"
	"math"
)

// HannWindow returns a periodic Hann analysis window of the given length.
func HannWindow(length int) []float64 {
	window := make([]float64, length)
	if length <= 0 {
		return window
	}
	if length == 1 {
		window[0] = 1
		return window
	}
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(length)))
	}
	return window
}

// Preemphasis applies a first-order high-frequency boost:
// y[n] = x[n] - coef*x[n-1]. Standard coefficient is 0.97.
func Preemphasis(samples []float64, coef float64) ([]float64, error) {
	if len(samples) == 0 {
		return nil, errors.New("no samples provided")
	}
	filtered := make([]float64, len(samples))
	filtered[0] = samples[0]
	for i := 1; i < len(samples); i++ {
		filtered[i] = samples[i] - coef*samples[i-1]
	}
	return filtered, nil
}

// Resample converts samples from srcRate to dstRate using linear interpolation.
func Resample(samples []float64, srcRate, dstRate int) ([]float64, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, errors.New("invalid sample rate")
	}
	if len(samples) == 0 {
		return nil, errors.New("no samples provided")
	}
	if srcRate == dstRate {
		return append([]float64(nil), samples...), nil
	}

	ratio := float64(srcRate) / float64(dstRate)
	outLen := int(math.Floor(float64(len(samples)) / ratio))
	if outLen < 1 {
		outLen = 1
	}

	out := make([]float64, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out, nil
}
