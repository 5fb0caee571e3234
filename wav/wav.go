package wav

// WAV decode/encode built on go-audio. The analysis pipeline works on mono
// float64 samples in [-1, 1]; multi-channel input is mixed down on load.

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	audiowav "github.com/go-audio/wav"
)

// Waveform is a decoded audio clip. Immutable once loaded.
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// DurationMs returns the clip duration in whole milliseconds.
func (w *Waveform) DurationMs() int {
	if w.SampleRate <= 0 {
		return 0
	}
	return len(w.Samples) * 1000 / w.SampleRate
}

// DurationSeconds returns the clip duration in seconds.
func (w *Waveform) DurationSeconds() float64 {
	if w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// ReadWaveFile decodes a WAV file into a mono waveform.
func ReadWaveFile(path string) (*Waveform, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	waveform, err := decodeWave(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return waveform, nil
}

// DecodeWaveBytes decodes in-memory WAV data, e.g. a clip received over a
// socket.
func DecodeWaveBytes(data []byte) (*Waveform, error) {
	return decodeWave(bytes.NewReader(data))
}

func decodeWave(r io.ReadSeeker) (*Waveform, error) {
	decoder := audiowav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, errors.New("not a valid wav file")
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode wav data: %w", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, errors.New("wav file contains no samples")
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float64(int64(1) << (bitDepth - 1))

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}

	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += float64(buf.Data[i*channels+ch]) / scale
		}
		samples[i] = sum / float64(channels)
	}

	return &Waveform{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}

// WriteWaveFile encodes mono float64 samples as 16-bit PCM.
func WriteWaveFile(path string, samples []float64, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %q: %w", dir, err)
		}
	}

	file, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}
	defer file.Close()

	encoder := audiowav.NewEncoder(file, sampleRate, 16, 1, 1)

	data := make([]int, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		data[i] = int(s * 32767)
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := encoder.Write(buf); err != nil {
		return fmt.Errorf("failed to write wav data: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to finalize wav file: %w", err)
	}
	return nil
}
