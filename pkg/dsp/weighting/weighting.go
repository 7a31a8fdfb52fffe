// Package weighting implements the named frequency-weighting curves applied
// before power integration and spectrum reporting.
//
// Every curve is a cascade of biquads derived at the requested sample rate,
// so coefficients follow sample-rate changes instead of being tied to 48 kHz.
//
//	A    IEC 61672 A-weighting, 0 dB at 1 kHz
//	C    IEC 61672 C-weighting, 0 dB at 1 kHz
//	K    ITU-R BS.1770 style pre-filter (high shelf) + RLB high-pass
//	none flat; "Z" and "" are accepted aliases
package weighting

import (
	"fmt"
	"math"
	"strings"

	"github.com/justyntemme/mastermeter/pkg/audio"
	"github.com/justyntemme/mastermeter/pkg/dsp/filter"
)

// Curve names a weighting curve.
type Curve string

const (
	A    Curve = "A"
	C    Curve = "C"
	K    Curve = "K"
	None Curve = "none"
)

// Analog pole frequencies of the IEC 61672 A and C curves.
const (
	poleLow  = 20.598997
	poleA1   = 107.65265
	poleA2   = 737.86223
	poleHigh = 12194.217
)

// BS.1770 prototype constants for the K curve.
const (
	shelfFreq  = 1681.974450955533
	shelfGain  = 3.999843853973347
	shelfQ     = 0.7071752369554196
	shelfVbExp = 0.4996667741545416
	rlbFreq    = 38.13547087602444
	rlbQ       = 0.5003270373238773
)

// Lookup resolves a curve name, case-insensitively.
func Lookup(name string) (Curve, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "a":
		return A, nil
	case "c":
		return C, nil
	case "k":
		return K, nil
	case "", "none", "z":
		return None, nil
	}
	return "", fmt.Errorf("%w: %q (want A, C, K or none)", audio.ErrUnknownWeighting, name)
}

// Design returns the biquad cascade for curve at sampleRate. The None curve
// has no sections.
func Design(curve Curve, sampleRate float64) (filter.Cascade, error) {
	if !(sampleRate > 0) {
		return nil, fmt.Errorf("%w: sample_rate must be > 0, got %v", audio.ErrInvalidParameter, sampleRate)
	}

	switch curve {
	case None:
		return filter.Cascade{}, nil
	case K:
		return designK(sampleRate), nil
	case A:
		c := filter.Cascade{
			filter.HighpassPrewarped(sampleRate, poleLow, 0.5),
			filter.HighpassFirstOrder(sampleRate, poleA1),
			filter.HighpassFirstOrder(sampleRate, poleA2),
			filter.LowpassPrewarped(sampleRate, math.Min(poleHigh, 0.49*sampleRate), 0.5),
		}
		return normalizeAt1k(c, sampleRate), nil
	case C:
		c := filter.Cascade{
			filter.HighpassPrewarped(sampleRate, poleLow, 0.5),
			filter.LowpassPrewarped(sampleRate, math.Min(poleHigh, 0.49*sampleRate), 0.5),
		}
		return normalizeAt1k(c, sampleRate), nil
	}

	return nil, fmt.Errorf("%w: %q", audio.ErrUnknownWeighting, string(curve))
}

func designK(fs float64) filter.Cascade {
	K := math.Tan(math.Pi * shelfFreq / fs)
	Vh := math.Pow(10.0, shelfGain/20.0)
	Vb := math.Pow(Vh, shelfVbExp)
	a0 := 1.0 + K/shelfQ + K*K

	pre := filter.Coefficients{
		B0: (Vh + Vb*K/shelfQ + K*K) / a0,
		B1: 2.0 * (K*K - Vh) / a0,
		B2: (Vh - Vb*K/shelfQ + K*K) / a0,
		A1: 2.0 * (K*K - 1.0) / a0,
		A2: (1.0 - K/shelfQ + K*K) / a0,
	}

	// The RLB numerator stays at [1, -2, 1]; the calibration constant
	// assumes it.
	K = math.Tan(math.Pi * rlbFreq / fs)
	a0 = 1.0 + K/rlbQ + K*K
	rlb := filter.Coefficients{
		B0: 1.0,
		B1: -2.0,
		B2: 1.0,
		A1: 2.0 * (K*K - 1.0) / a0,
		A2: (1.0 - K/rlbQ + K*K) / a0,
	}

	return filter.Cascade{pre, rlb}
}

func normalizeAt1k(c filter.Cascade, fs float64) filter.Cascade {
	if mag := c.Magnitude(1000, fs); mag > 0 {
		c[0] = c[0].Scale(1.0 / mag)
	}
	return c
}

// Filter is a per-call weighting filter over interleaved audio.
type Filter struct {
	curve Curve
	chain *filter.Chain
}

// NewFilter designs curve at sampleRate with fresh state for channels.
func NewFilter(name string, sampleRate float64, channels int) (*Filter, error) {
	curve, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	cascade, err := Design(curve, sampleRate)
	if err != nil {
		return nil, err
	}
	return &Filter{curve: curve, chain: cascade.NewChain(channels)}, nil
}

// Curve returns the curve the filter implements.
func (f *Filter) Curve() Curve {
	return f.curve
}

// Process returns the weighted copy of an interleaved buffer. State carries
// over so consecutive blocks of one stream filter seamlessly.
func (f *Filter) Process(interleaved []float64) []float64 {
	return f.chain.ProcessInterleaved(interleaved)
}

// Apply weights one block with fresh filter state and returns a new block.
func Apply(name string, blk *audio.Block) (*audio.Block, error) {
	f, err := NewFilter(name, blk.SampleRate, blk.Channels)
	if err != nil {
		return nil, err
	}
	out := *blk
	out.Samples = f.Process(blk.Samples)
	return &out, nil
}

// ResponseDB returns the magnitude response of curve at freq in dB.
// Zeros of the response (A and C at DC) yield -Inf.
func ResponseDB(name string, sampleRate, freq float64) (float64, error) {
	curve, err := Lookup(name)
	if err != nil {
		return 0, err
	}
	cascade, err := Design(curve, sampleRate)
	if err != nil {
		return 0, err
	}
	return 20.0 * math.Log10(cascade.Magnitude(freq, sampleRate)), nil
}
