package analysis

import (
	"fmt"
	"io"
	"sort"

	"github.com/san-kum/vivsim/internal/viv"
)

// SeriesReport describes one column of a time history.
type SeriesReport struct {
	Summary
	Dominant float64 `json:"dominant_hz"`
	Crossing float64 `json:"crossing_hz"`
	Ratio    float64 `json:"ratio"` // dominant over shedding frequency
}

type Report struct {
	Steps    int                     `json:"steps"`
	Dt       float64                 `json:"dt"`
	Shedding float64                 `json:"shedding_hz"`
	Series   map[string]SeriesReport `json:"series"`
}

// Analyze reports every non-time column of h sampled every dt. shedding is
// the reference frequency for the ratios; zero leaves them unset.
func Analyze(h *viv.TimeHistory, dt, shedding float64) (*Report, error) {
	if h == nil || h.Len() < 2 {
		return nil, ErrShortSeries
	}
	if !(dt > 0) {
		return nil, fmt.Errorf("analysis: dt must be positive, got %v", dt)
	}

	times, _ := h.Series("time")
	rep := &Report{
		Steps:    h.Len(),
		Dt:       dt,
		Shedding: shedding,
		Series:   make(map[string]SeriesReport),
	}
	for _, name := range viv.Columns()[1:] {
		data, _ := h.Series(name)
		sr := SeriesReport{Summary: Summarize(data)}
		if f, err := DominantFrequency(data, dt); err == nil {
			sr.Dominant = f
		}
		if f, err := CrossingFrequency(times, data); err == nil {
			sr.Crossing = f
		}
		if shedding > 0 {
			sr.Ratio = sr.Dominant / shedding
		}
		rep.Series[name] = sr
	}
	return rep, nil
}

// Write prints the report as an aligned table.
func (r *Report) Write(w io.Writer) error {
	names := make([]string, 0, len(r.Series))
	for name := range r.Series {
		names = append(names, name)
	}
	sort.Strings(names)

	if _, err := fmt.Fprintf(w, "steps=%d dt=%g shedding=%.4g Hz\n\n", r.Steps, r.Dt, r.Shedding); err != nil {
		return err
	}
	fmt.Fprintf(w, "%-8s %12s %12s %12s %12s %12s %8s\n", "series", "mean", "std", "amplitude", "dominant", "crossing", "ratio")
	for _, name := range names {
		s := r.Series[name]
		if _, err := fmt.Fprintf(w, "%-8s %12.5g %12.5g %12.5g %12.5g %12.5g %8.3f\n",
			name, s.Mean, s.Std, s.Amplitude, s.Dominant, s.Crossing, s.Ratio); err != nil {
			return err
		}
	}
	return nil
}
