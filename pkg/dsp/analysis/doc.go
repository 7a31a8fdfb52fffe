// Package analysis implements the measurement analyzers.
//
// Every analyzer follows the same shape: construct it for one window's
// format, feed it blocks with Process, then call Result once. Analyzers hold
// no shared state, so independent measurements may run concurrently.
//
// Loudness:
//   - K-weighted momentary (400 ms) and short-term (3 s) block streams
//   - absolute and relative gating for integrated loudness
//   - loudness range (EBU Tech 3342)
//   - polyphase true-peak detection
//
// Spectrum:
//   - windowed FFT with linear frame averaging
//   - optional A, C or K weighting per bin
//   - band energy, octave bands, tonal balance
//
// Stereo and dynamics:
//   - Pearson correlation with phase classification
//   - mid/side energy, width, balance
//   - unweighted peak, RMS and crest factor
//
// Example usage:
//
//	m, _ := analysis.NewLoudnessMeter(format, cfg.Loudness, cfg.TruePeak)
//	for each block {
//	    m.Process(block)
//	}
//	res, err := m.Result()
package analysis
