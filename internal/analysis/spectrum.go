package analysis

import (
	"errors"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/stat"
)

var ErrShortSeries = errors.New("analysis: series too short")

// PowerSpectrum returns the one-sided power of the mean-removed series
// sampled every dt, and the frequency of each bin.
func PowerSpectrum(data []float64, dt float64) (freqs, power []float64) {
	n := len(data)
	if n < 2 || !(dt > 0) {
		return nil, nil
	}

	mean := stat.Mean(data, nil)
	centered := make([]float64, n)
	for i, v := range data {
		centered[i] = v - mean
	}

	coeffs := fft.FFTReal(centered)
	half := n/2 + 1
	freqs = make([]float64, half)
	power = make([]float64, half)
	for k := 0; k < half; k++ {
		freqs[k] = float64(k) / (float64(n) * dt)
		a := cmplx.Abs(coeffs[k])
		power[k] = a * a / float64(n)
	}
	return freqs, power
}

// DominantFrequency returns the frequency of the strongest non-zero bin.
func DominantFrequency(data []float64, dt float64) (float64, error) {
	freqs, power := PowerSpectrum(data, dt)
	if len(power) < 2 {
		return 0, ErrShortSeries
	}
	best := 1
	for k := 2; k < len(power); k++ {
		if power[k] > power[best] {
			best = k
		}
	}
	return freqs[best], nil
}
