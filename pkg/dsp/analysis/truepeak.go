package analysis

import (
	"math"

	"github.com/justyntemme/mastermeter/pkg/config"
)

// TruePeakDetector estimates inter-sample peaks by polyphase oversampling.
// History is primed with the first sample of each channel so a constant
// signal reads exactly its value instead of ringing up from zero.
type TruePeakDetector struct {
	channels   int
	oversample int
	taps       int
	coeffs     [][]float64
	history    [][]float64
	primed     bool
	prev       []float64
	truePeak   float64
	samplePeak float64
}

// NewTruePeakDetector creates a detector for interleaved audio. An oversample
// factor of 1 or less falls back to linear interpolation.
func NewTruePeakDetector(channels int, cfg config.TruePeak) *TruePeakDetector {
	d := &TruePeakDetector{
		channels:   channels,
		oversample: cfg.Oversample,
		taps:       cfg.TapsPerPhase,
		prev:       make([]float64, channels),
	}
	if d.oversample > 1 {
		d.coeffs = polyphaseCoefficients(d.oversample, d.taps)
		d.history = make([][]float64, channels)
		for ch := range d.history {
			d.history[ch] = make([]float64, d.taps)
		}
	}
	return d
}

// polyphaseCoefficients builds a Kaiser-windowed sinc lowpass at the
// original Nyquist, split into one normalized sub-filter per phase.
func polyphaseCoefficients(oversample, taps int) [][]float64 {
	const beta = 5.0
	total := oversample * taps
	center := float64(total-1) / 2.0

	coeffs := make([][]float64, oversample)
	for phase := range coeffs {
		coeffs[phase] = make([]float64, taps)
		for tap := 0; tap < taps; tap++ {
			count := tap*oversample + phase
			x := float64(count) - center

			sinc := 1.0
			if math.Abs(x) > 1e-10 {
				arg := math.Pi * x / float64(oversample)
				sinc = math.Sin(arg) / arg
			}

			alpha := x / center
			if math.Abs(alpha) <= 1.0 {
				window := bessel0(beta*math.Sqrt(1-alpha*alpha)) / bessel0(beta)
				coeffs[phase][tap] = sinc * window
			}
		}

		var sum float64
		for _, c := range coeffs[phase] {
			sum += c
		}
		for tap := range coeffs[phase] {
			coeffs[phase][tap] /= sum
		}
	}
	return coeffs
}

// Process consumes interleaved samples.
func (d *TruePeakDetector) Process(samples []float64) {
	if len(samples) < d.channels {
		return
	}
	if !d.primed {
		for ch := 0; ch < d.channels; ch++ {
			first := samples[ch]
			d.prev[ch] = first
			if d.history != nil {
				for tap := range d.history[ch] {
					d.history[ch][tap] = first
				}
			}
		}
		d.primed = true
	}

	for i := 0; i+d.channels <= len(samples); i += d.channels {
		for ch := 0; ch < d.channels; ch++ {
			sample := samples[i+ch]
			abs := math.Abs(sample)
			if abs > d.samplePeak {
				d.samplePeak = abs
			}

			if d.oversample <= 1 {
				mid := math.Abs(0.5 * (sample + d.prev[ch]))
				d.prev[ch] = sample
				if mid > d.truePeak {
					d.truePeak = mid
				}
				continue
			}

			h := d.history[ch]
			copy(h, h[1:])
			h[len(h)-1] = sample

			for phase := range d.coeffs {
				var interp float64
				for tap, c := range d.coeffs[phase] {
					interp += h[tap] * c
				}
				if a := math.Abs(interp); a > d.truePeak {
					d.truePeak = a
				}
			}
		}
	}
}

// Peak returns the linear true peak, never below the sample peak.
func (d *TruePeakDetector) Peak() float64 {
	return math.Max(d.truePeak, d.samplePeak)
}

// SamplePeak returns the largest absolute sample seen.
func (d *TruePeakDetector) SamplePeak() float64 {
	return d.samplePeak
}
