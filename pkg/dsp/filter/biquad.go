// Package filter provides second-order IIR sections designed from analog
// prototypes, their frequency response and running state over interleaved
// audio.
package filter

import (
	"math"
	"math/cmplx"
)

// Coefficients holds a normalized second-order section (a0 == 1).
type Coefficients struct {
	B0, B1, B2 float64 // numerator
	A1, A2     float64 // denominator
}

// Normalize divides every coefficient by a0.
func Normalize(b0, b1, b2, a0, a1, a2 float64) Coefficients {
	invA0 := 1.0 / a0
	return Coefficients{
		B0: b0 * invA0,
		B1: b1 * invA0,
		B2: b2 * invA0,
		A1: a1 * invA0,
		A2: a2 * invA0,
	}
}

// Scale multiplies the numerator by g.
func (c Coefficients) Scale(g float64) Coefficients {
	c.B0 *= g
	c.B1 *= g
	c.B2 *= g
	return c
}

// Response evaluates the complex frequency response at freq Hz.
func (c Coefficients) Response(freq, sampleRate float64) complex128 {
	w := 2.0 * math.Pi * freq / sampleRate
	z1 := cmplx.Exp(complex(0, -w))
	z2 := z1 * z1
	num := complex(c.B0, 0) + complex(c.B1, 0)*z1 + complex(c.B2, 0)*z2
	den := 1 + complex(c.A1, 0)*z1 + complex(c.A2, 0)*z2
	return num / den
}

// Magnitude returns |H(f)|.
func (c Coefficients) Magnitude(freq, sampleRate float64) float64 {
	return cmplx.Abs(c.Response(freq, sampleRate))
}

// Analog prototypes mapped through the bilinear transform with the cutoff
// prewarped, K = tan(pi*f0/fs). These keep pole frequencies exact at any
// sample rate, which the weighting curves rely on.

// HighpassPrewarped maps s^2 / (s^2 + s*w/Q + w^2).
func HighpassPrewarped(sampleRate, frequency, q float64) Coefficients {
	K := math.Tan(math.Pi * frequency / sampleRate)
	a0 := 1.0 + K/q + K*K
	return Normalize(1.0, -2.0, 1.0, a0, 2.0*(K*K-1.0), 1.0-K/q+K*K)
}

// LowpassPrewarped maps w^2 / (s^2 + s*w/Q + w^2).
func LowpassPrewarped(sampleRate, frequency, q float64) Coefficients {
	K := math.Tan(math.Pi * frequency / sampleRate)
	K2 := K * K
	a0 := 1.0 + K/q + K2
	return Normalize(K2, 2.0*K2, K2, a0, 2.0*(K2-1.0), 1.0-K/q+K2)
}

// HighpassFirstOrder maps s / (s + w).
func HighpassFirstOrder(sampleRate, frequency float64) Coefficients {
	K := math.Tan(math.Pi * frequency / sampleRate)
	return Normalize(1.0, -1.0, 0, 1.0+K, K-1.0, 0)
}

// Biquad implements a second-order IIR filter (biquad)
// Direct Form I implementation with pre-allocated state
type Biquad struct {
	c Coefficients

	// State variables (per-channel)
	x1, x2 []float64 // input delay line
	y1, y2 []float64 // output delay line
}

// NewBiquad creates a new biquad filter for the specified number of channels
func NewBiquad(c Coefficients, channels int) *Biquad {
	return &Biquad{
		c:  c,
		x1: make([]float64, channels),
		x2: make([]float64, channels),
		y1: make([]float64, channels),
		y2: make([]float64, channels),
	}
}

// Tick filters one sample of channel.
func (b *Biquad) Tick(x0 float64, channel int) float64 {
	c := &b.c
	y0 := c.B0*x0 + c.B1*b.x1[channel] + c.B2*b.x2[channel] - c.A1*b.y1[channel] - c.A2*b.y2[channel]

	b.x2[channel] = b.x1[channel]
	b.x1[channel] = x0
	b.y2[channel] = b.y1[channel]
	b.y1[channel] = y0

	return y0
}

// Cascade is an ordered list of sections applied in series.
type Cascade []Coefficients

// Magnitude returns the product of every section's |H(f)|.
func (c Cascade) Magnitude(freq, sampleRate float64) float64 {
	mag := 1.0
	for _, s := range c {
		mag *= s.Magnitude(freq, sampleRate)
	}
	return mag
}

// Chain holds running state for a Cascade over interleaved audio.
type Chain struct {
	stages   []*Biquad
	channels int
}

// NewChain allocates fresh state for channels.
func (c Cascade) NewChain(channels int) *Chain {
	ch := &Chain{stages: make([]*Biquad, len(c)), channels: channels}
	for i, s := range c {
		ch.stages[i] = NewBiquad(s, channels)
	}
	return ch
}

// ProcessInterleaved filters interleaved samples into a new slice. State
// carries over between calls so consecutive blocks filter seamlessly.
func (ch *Chain) ProcessInterleaved(samples []float64) []float64 {
	out := make([]float64, len(samples))
	for i, x := range samples {
		c := i % ch.channels
		for _, st := range ch.stages {
			x = st.Tick(x, c)
		}
		out[i] = x
	}
	return out
}

