package dsp

// Mel-scaled spectrogram computation. Frames the signal with a periodic Hann
// window, takes the FFT power spectrum per frame, and projects onto a bank of
// triangular mel filters (Slaney scale, area-normalized). Matches the common
// analysis defaults: centered frames with reflect padding, power spectra, and
// a dB conversion referenced to the spectrogram maximum.

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	melBreakHz    = 1000.0
	melBreakPoint = 15.0
	melLogStep    = 27.0
)

func hzToMel(hz float64) float64 {
	if hz < melBreakHz {
		return hz * 3.0 / 200.0
	}
	return melBreakPoint + melLogStep*math.Log(hz/melBreakHz)/math.Log(6.4)
}

func melToHz(mel float64) float64 {
	if mel < melBreakPoint {
		return mel * 200.0 / 3.0
	}
	return melBreakHz * math.Exp(math.Log(6.4)*(mel-melBreakPoint)/melLogStep)
}

// MelFilterbank builds an (nMels x nFFT/2+1) filter matrix for the given
// analysis parameters. Filters are triangular in mel space and normalized so
// each has unit area in Hz.
func MelFilterbank(sampleRate, nFFT, nMels int, fmin, fmax float64) (*mat.Dense, error) {
	if sampleRate <= 0 || nFFT <= 0 || nMels <= 0 {
		return nil, errors.New("invalid filterbank parameters")
	}
	if fmax <= 0 || fmax > float64(sampleRate)/2 {
		fmax = float64(sampleRate) / 2
	}
	if fmin < 0 || fmin >= fmax {
		return nil, errors.New("invalid frequency range")
	}

	bins := nFFT/2 + 1
	fftFreqs := make([]float64, bins)
	for k := range fftFreqs {
		fftFreqs[k] = float64(k) * float64(sampleRate) / float64(nFFT)
	}

	melMin := hzToMel(fmin)
	melMax := hzToMel(fmax)
	melPoints := make([]float64, nMels+2)
	for i := range melPoints {
		mel := melMin + (melMax-melMin)*float64(i)/float64(nMels+1)
		melPoints[i] = melToHz(mel)
	}

	filters := mat.NewDense(nMels, bins, nil)
	for m := 0; m < nMels; m++ {
		lower := melPoints[m]
		center := melPoints[m+1]
		upper := melPoints[m+2]
		norm := 2.0 / (upper - lower)
		for k, freq := range fftFreqs {
			var weight float64
			switch {
			case freq <= lower || freq >= upper:
				weight = 0
			case freq <= center:
				weight = (freq - lower) / (center - lower)
			default:
				weight = (upper - freq) / (upper - center)
			}
			filters.Set(m, k, weight*norm)
		}
	}
	return filters, nil
}

// STFTPower computes a centered power spectrogram of shape (nFFT/2+1 x frames).
// The signal is reflect-padded by nFFT/2 on both sides so frame count is
// 1 + len(samples)/hop.
func STFTPower(samples []float64, nFFT, hop int) (*mat.Dense, error) {
	if len(samples) == 0 {
		return nil, errors.New("no samples provided")
	}
	if nFFT <= 0 || hop <= 0 || nFFT&(nFFT-1) != 0 {
		return nil, errors.New("invalid stft parameters")
	}

	padded := reflectPad(samples, nFFT/2)
	frames := 1 + (len(padded)-nFFT)/hop
	if frames < 1 {
		frames = 1
	}

	window := HannWindow(nFFT)
	bins := nFFT/2 + 1
	power := mat.NewDense(bins, frames, nil)

	frame := make([]float64, nFFT)
	for f := 0; f < frames; f++ {
		offset := f * hop
		for i := 0; i < nFFT; i++ {
			if offset+i < len(padded) {
				frame[i] = padded[offset+i] * window[i]
			} else {
				frame[i] = 0
			}
		}
		spectrum := FFT(frame)
		for k := 0; k < bins; k++ {
			re := real(spectrum[k])
			im := imag(spectrum[k])
			power.Set(k, f, re*re+im*im)
		}
	}
	return power, nil
}

func reflectPad(samples []float64, pad int) []float64 {
	n := len(samples)
	if pad <= 0 {
		return samples
	}
	if n == 1 {
		out := make([]float64, n+2*pad)
		for i := range out {
			out[i] = samples[0]
		}
		return out
	}
	out := make([]float64, n+2*pad)
	for i := 0; i < pad; i++ {
		src := pad - i
		if src >= n {
			src = src % (2 * (n - 1))
			if src >= n {
				src = 2*(n-1) - src
			}
		}
		out[i] = samples[src]
	}
	copy(out[pad:], samples)
	for i := 0; i < pad; i++ {
		src := n - 2 - i
		for src < 0 {
			src += 2 * (n - 1)
		}
		if src >= n {
			src = 2*(n-1) - src
		}
		out[pad+n+i] = samples[src]
	}
	return out
}

// MelSpectrogram computes an (nMels x frames) mel power spectrogram.
func MelSpectrogram(samples []float64, sampleRate, nMels, nFFT, hop int, fmin, fmax float64) (*mat.Dense, error) {
	power, err := STFTPower(samples, nFFT, hop)
	if err != nil {
		return nil, err
	}
	filters, err := MelFilterbank(sampleRate, nFFT, nMels, fmin, fmax)
	if err != nil {
		return nil, err
	}

	var melSpec mat.Dense
	melSpec.Mul(filters, power)
	return &melSpec, nil
}

// PowerToDB converts a power spectrogram to decibels relative to its maximum
// value, clipped to a topDB dynamic-range floor.
func PowerToDB(spec *mat.Dense, topDB float64) (*mat.Dense, error) {
	if spec == nil {
		return nil, errors.New("nil spectrogram")
	}
	rows, cols := spec.Dims()
	if rows == 0 || cols == 0 {
		return nil, errors.New("empty spectrogram")
	}

	const amin = 1e-10
	ref := amin
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if v := spec.At(r, c); v > ref {
				ref = v
			}
		}
	}

	refDB := 10 * math.Log10(ref)
	out := mat.NewDense(rows, cols, nil)
	maxDB := math.Inf(-1)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := spec.At(r, c)
			if v < amin {
				v = amin
			}
			db := 10*math.Log10(v) - refDB
			out.Set(r, c, db)
			if db > maxDB {
				maxDB = db
			}
		}
	}

	if topDB > 0 {
		floor := maxDB - topDB
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				if out.At(r, c) < floor {
					out.Set(r, c, floor)
				}
			}
		}
	}
	return out, nil
}
