// Package analysis post-processes the time history of a VIV run.
//
//   - [PowerSpectrum] and [DominantFrequency]: one-sided spectra of a series
//   - [Summarize]: mean, spread and amplitude of a series
//   - [UpCrossings]: oscillation periods from mean up-crossings
//   - [Orbit] and [OrbitToASCII]: the in-line versus cross-flow trajectory
//     of the monitored node
//
// A lock-in check compares the response frequency with the shedding
// frequency:
//
//	rep, _ := analysis.Analyze(hist, dt, consts.Frequency)
//	if math.Abs(rep.Series["disp_y"].Ratio-1) < 0.1 {
//	    // cross-flow response near the Strouhal frequency
//	}
package analysis
