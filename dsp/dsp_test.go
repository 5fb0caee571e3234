package dsp

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestFFTSinePeaksAtBin(t *testing.T) {
	t.Parallel()

	const n = 1024
	const bin = 32
	frame := make([]float64, n)
	for i := range frame {
		frame[i] = math.Sin(2 * math.Pi * float64(bin) * float64(i) / float64(n))
	}

	spectrum := FFT(frame)
	if len(spectrum) != n {
		t.Fatalf("expected %d bins, got %d", n, len(spectrum))
	}

	peak := 0
	peakMag := 0.0
	for k := 0; k < n/2; k++ {
		mag := math.Hypot(real(spectrum[k]), imag(spectrum[k]))
		if mag > peakMag {
			peakMag = mag
			peak = k
		}
	}
	if peak != bin {
		t.Fatalf("expected peak at bin %d, got %d", bin, peak)
	}
}

func TestFFTImpulseIsFlat(t *testing.T) {
	t.Parallel()

	frame := make([]float64, 64)
	frame[0] = 1

	spectrum := FFT(frame)
	for k, v := range spectrum {
		mag := math.Hypot(real(v), imag(v))
		if math.Abs(mag-1) > 1e-9 {
			t.Fatalf("bin %d magnitude %f, want 1", k, mag)
		}
	}
}

func TestNextPowerOfTwo(t *testing.T) {
	t.Parallel()

	cases := map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 1000: 1024, 2048: 2048}
	for in, want := range cases {
		if got := NextPowerOfTwo(in); got != want {
			t.Errorf("NextPowerOfTwo(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestHannWindowPeriodic(t *testing.T) {
	t.Parallel()

	window := HannWindow(512)
	if window[0] != 0 {
		t.Fatalf("periodic window should start at 0, got %f", window[0])
	}
	if math.Abs(window[256]-1) > 1e-12 {
		t.Fatalf("expected midpoint 1, got %f", window[256])
	}
	// periodic symmetry: w[i] == w[N-i]
	for i := 1; i < 256; i++ {
		if math.Abs(window[i]-window[512-i]) > 1e-12 {
			t.Fatalf("asymmetric at %d: %f vs %f", i, window[i], window[512-i])
		}
	}
}

func TestPreemphasis(t *testing.T) {
	t.Parallel()

	out, err := Preemphasis([]float64{1, 1, 1, 1}, 0.97)
	if err != nil {
		t.Fatalf("Preemphasis returned error: %v", err)
	}
	want := []float64{1, 0.03, 0.03, 0.03}
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-12 {
			t.Fatalf("sample %d: got %f, want %f", i, out[i], want[i])
		}
	}

	if _, err := Preemphasis(nil, 0.97); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestResampleLengths(t *testing.T) {
	t.Parallel()

	samples := make([]float64, 44100)
	out, err := Resample(samples, 44100, 22050)
	if err != nil {
		t.Fatalf("Resample returned error: %v", err)
	}
	if len(out) != 22050 {
		t.Fatalf("expected 22050 samples, got %d", len(out))
	}

	same, err := Resample([]float64{1, 2, 3}, 22050, 22050)
	if err != nil {
		t.Fatalf("Resample returned error: %v", err)
	}
	if len(same) != 3 || same[1] != 2 {
		t.Fatalf("same-rate resample should copy input, got %v", same)
	}

	if _, err := Resample(samples, 0, 22050); err == nil {
		t.Fatal("expected error for invalid source rate")
	}
	if _, err := Resample(nil, 44100, 22050); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestResampleInterpolates(t *testing.T) {
	t.Parallel()

	// upsampling a ramp stays a ramp under linear interpolation
	ramp := []float64{0, 1, 2, 3}
	out, err := Resample(ramp, 100, 200)
	if err != nil {
		t.Fatalf("Resample returned error: %v", err)
	}
	for i := 1; i < len(out)-2; i++ {
		step := out[i+1] - out[i]
		if math.Abs(step-0.5) > 1e-9 {
			t.Fatalf("expected uniform 0.5 steps, got %f at %d", step, i)
		}
	}
}

func TestMelFilterbankShape(t *testing.T) {
	t.Parallel()

	filters, err := MelFilterbank(22050, 2048, 128, 50, 11025)
	if err != nil {
		t.Fatalf("MelFilterbank returned error: %v", err)
	}
	rows, cols := filters.Dims()
	if rows != 128 || cols != 1025 {
		t.Fatalf("expected 128x1025, got %dx%d", rows, cols)
	}

	for m := 0; m < rows; m++ {
		var sum float64
		for k := 0; k < cols; k++ {
			v := filters.At(m, k)
			if v < 0 {
				t.Fatalf("filter %d has negative weight %f at bin %d", m, v, k)
			}
			sum += v
		}
		if sum == 0 {
			t.Fatalf("filter %d is all zero", m)
		}
	}
}

func TestMelFilterbankRejectsBadRange(t *testing.T) {
	t.Parallel()

	if _, err := MelFilterbank(22050, 2048, 128, 12000, 11025); err == nil {
		t.Fatal("expected error when fmin >= fmax")
	}
	if _, err := MelFilterbank(0, 2048, 128, 50, 11025); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestSTFTPowerFrameCount(t *testing.T) {
	t.Parallel()

	samples := make([]float64, 22050)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * 440 * float64(i) / 22050)
	}

	power, err := STFTPower(samples, 2048, 512)
	if err != nil {
		t.Fatalf("STFTPower returned error: %v", err)
	}
	bins, frames := power.Dims()
	if bins != 1025 {
		t.Fatalf("expected 1025 bins, got %d", bins)
	}
	if want := 1 + len(samples)/512; frames != want {
		t.Fatalf("expected %d frames, got %d", want, frames)
	}

	for f := 0; f < frames; f++ {
		for k := 0; k < bins; k++ {
			if power.At(k, f) < 0 {
				t.Fatalf("negative power at (%d, %d)", k, f)
			}
		}
	}
}

func TestSTFTPowerRejectsBadParams(t *testing.T) {
	t.Parallel()

	samples := make([]float64, 1000)
	if _, err := STFTPower(samples, 1000, 512); err == nil {
		t.Fatal("expected error for non-power-of-two frame size")
	}
	if _, err := STFTPower(nil, 2048, 512); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestPowerToDBRange(t *testing.T) {
	t.Parallel()

	samples := make([]float64, 22050)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * 220 * float64(i) / 22050)
	}
	spec, err := MelSpectrogram(samples, 22050, 128, 2048, 512, 50, 11025)
	if err != nil {
		t.Fatalf("MelSpectrogram returned error: %v", err)
	}

	db, err := PowerToDB(spec, 80)
	if err != nil {
		t.Fatalf("PowerToDB returned error: %v", err)
	}

	rows, cols := db.Dims()
	maxV := math.Inf(-1)
	minV := math.Inf(1)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := db.At(r, c)
			if v > maxV {
				maxV = v
			}
			if v < minV {
				minV = v
			}
		}
	}
	if math.Abs(maxV) > 1e-9 {
		t.Fatalf("maximum should be 0 dB relative to the reference, got %f", maxV)
	}
	if minV < -80-1e-9 {
		t.Fatalf("values should be clipped at -80 dB, got %f", minV)
	}
}

func TestResizeBilinear(t *testing.T) {
	t.Parallel()

	spec, err := MelSpectrogram(make([]float64, 4096), 22050, 64, 1024, 256, 50, 11025)
	if err != nil {
		t.Fatalf("MelSpectrogram returned error: %v", err)
	}

	resized, err := ResizeBilinear(spec, 128, 128)
	if err != nil {
		t.Fatalf("ResizeBilinear returned error: %v", err)
	}
	rows, cols := resized.Dims()
	if rows != 128 || cols != 128 {
		t.Fatalf("expected 128x128, got %dx%d", rows, cols)
	}

	if _, err := ResizeBilinear(nil, 128, 128); err == nil {
		t.Fatal("expected error for nil input")
	}
	if _, err := ResizeBilinear(spec, 0, 128); err == nil {
		t.Fatal("expected error for zero target height")
	}
}

func TestResizeBilinearIdentity(t *testing.T) {
	t.Parallel()

	src := make([]float64, 16)
	for i := range src {
		src[i] = float64(i)
	}
	spec := mat.NewDense(4, 4, src)

	out, err := ResizeBilinear(spec, 4, 4)
	if err != nil {
		t.Fatalf("ResizeBilinear returned error: %v", err)
	}
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			if math.Abs(out.At(r, c)-spec.At(r, c)) > 1e-12 {
				t.Fatalf("identity resize changed (%d,%d): %f vs %f", r, c, out.At(r, c), spec.At(r, c))
			}
		}
	}
}

func TestNormalizeUnit(t *testing.T) {
	t.Parallel()

	spec := mat.NewDense(2, 2, []float64{-80, -40, -20, 0})
	out := NormalizeUnit(spec)
	if out.At(0, 0) != 0 || out.At(1, 1) != 1 {
		t.Fatalf("expected endpoints 0 and 1, got %f and %f", out.At(0, 0), out.At(1, 1))
	}
	if got := out.At(0, 1); math.Abs(got-0.5) > 1e-12 {
		t.Fatalf("expected midpoint 0.5, got %f", got)
	}

	flat := NormalizeUnit(mat.NewDense(2, 2, []float64{3, 3, 3, 3}))
	for r := 0; r < 2; r++ {
		for c := 0; c < 2; c++ {
			if flat.At(r, c) != 0 {
				t.Fatalf("constant input should normalize to zeros, got %f", flat.At(r, c))
			}
		}
	}
}
