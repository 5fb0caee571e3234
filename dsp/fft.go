package dsp

// Cooley-Tukey radix-2 FFT. Converts a time-domain frame into its complex
// frequency spectrum; callers take the first N/2+1 bins for power spectra.
// Input length must be a power of two (the STFT frame size guarantees this).

import (
	"math"
)

// FFT computes the discrete Fourier transform of the input frame.
func FFT(input []float64) []complex128 {
	complexArray := make([]complex128, len(input))
	for i, v := range input {
		complexArray[i] = complex(v, 0)
	}
	return recursiveFFT(complexArray)
}

func recursiveFFT(complexArray []complex128) []complex128 {
	n := len(complexArray)
	if n <= 1 {
		return complexArray
	}

	even := make([]complex128, n/2)
	odd := make([]complex128, n/2)
	for i := 0; i < n/2; i++ {
		even[i] = complexArray[2*i]
		odd[i] = complexArray[2*i+1]
	}

	even = recursiveFFT(even)
	odd = recursiveFFT(odd)

	result := make([]complex128, n)
	for k := 0; k < n/2; k++ {
		angle := -2 * math.Pi * float64(k) / float64(n)
		t := complex(math.Cos(angle), math.Sin(angle))
		result[k] = even[k] + t*odd[k]
		result[k+n/2] = even[k] - t*odd[k]
	}

	return result
}

// NextPowerOfTwo returns the smallest power of two >= n.
func NextPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}
	power := 1
	for power < n {
		power <<= 1
	}
	return power
}
