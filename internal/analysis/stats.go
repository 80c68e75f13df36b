package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type Summary struct {
	Mean      float64 `json:"mean"`
	Std       float64 `json:"std"`
	RMS       float64 `json:"rms"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Amplitude float64 `json:"amplitude"` // half the peak to peak range
}

func Summarize(data []float64) Summary {
	if len(data) == 0 {
		return Summary{}
	}
	var s Summary
	s.Mean, s.Std = stat.MeanStdDev(data, nil)
	if len(data) == 1 {
		s.Std = 0
	}
	s.RMS = math.Sqrt(floats.Dot(data, data) / float64(len(data)))
	s.Min = floats.Min(data)
	s.Max = floats.Max(data)
	s.Amplitude = 0.5 * (s.Max - s.Min)
	return s
}
