// Package oscillator generates deterministic test signals for measurement.
package oscillator

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/justyntemme/mastermeter/pkg/audio"
)

// Waveform names a generator shape.
type Waveform string

const (
	Sine     Waveform = "sine"
	Square   Waveform = "square"
	Saw      Waveform = "saw"
	Triangle Waveform = "triangle"
	Noise    Waveform = "noise"
	Pink     Waveform = "pink"
)

// ParseWaveform resolves a case-insensitive waveform name.
func ParseWaveform(name string) (Waveform, error) {
	w := Waveform(strings.ToLower(strings.TrimSpace(name)))
	switch w {
	case Sine, Square, Saw, Triangle, Noise, Pink:
		return w, nil
	}
	return "", fmt.Errorf("%w: unknown waveform %q", audio.ErrInvalidParameter, name)
}

// Oscillator generates periodic waveforms.
type Oscillator struct {
	sampleRate float64
	frequency  float64
	amplitude  float64
	phase      float64
	phaseInc   float64
}

// New creates a full-scale 1 kHz oscillator.
func New(sampleRate float64) *Oscillator {
	o := &Oscillator{sampleRate: sampleRate, amplitude: 1.0}
	o.SetFrequency(1000.0)
	return o
}

// SetFrequency sets the oscillator frequency
func (o *Oscillator) SetFrequency(freq float64) {
	o.frequency = freq
	o.phaseInc = freq / o.sampleRate
}

// SetAmplitude sets the linear peak amplitude.
func (o *Oscillator) SetAmplitude(amp float64) {
	o.amplitude = amp
}

// SetPhase sets the oscillator phase (0-1)
func (o *Oscillator) SetPhase(phase float64) {
	o.phase = phase - math.Floor(phase)
}

// Reset resets the oscillator phase to 0
func (o *Oscillator) Reset() {
	o.phase = 0.0
}

func (o *Oscillator) updatePhase() {
	o.phase += o.phaseInc
	if o.phase >= 1.0 {
		o.phase -= math.Floor(o.phase)
	}
}

// Sine generates a sine wave sample
func (o *Oscillator) Sine() float64 {
	sample := o.amplitude * math.Sin(2.0*math.Pi*o.phase)
	o.updatePhase()
	return sample
}

// Saw generates a sawtooth wave sample
func (o *Oscillator) Saw() float64 {
	sample := o.amplitude * (2.0*o.phase - 1.0)
	o.updatePhase()
	return sample
}

// Square generates a square wave sample
func (o *Oscillator) Square() float64 {
	sample := o.amplitude
	if o.phase >= 0.5 {
		sample = -o.amplitude
	}
	o.updatePhase()
	return sample
}

// Triangle generates a triangle wave sample
func (o *Oscillator) Triangle() float64 {
	var sample float64
	if o.phase < 0.5 {
		sample = 4.0*o.phase - 1.0
	} else {
		sample = 3.0 - 4.0*o.phase
	}
	o.updatePhase()
	return o.amplitude * sample
}

// Next generates one sample of the given periodic waveform.
func (o *Oscillator) Next(w Waveform) float64 {
	switch w {
	case Square:
		return o.Square()
	case Saw:
		return o.Saw()
	case Triangle:
		return o.Triangle()
	default:
		return o.Sine()
	}
}

// Process fills buffer with the waveform - no allocations
func (o *Oscillator) Process(w Waveform, buffer []float64) {
	for i := range buffer {
		buffer[i] = o.Next(w)
	}
}

// NoiseGenerator produces reproducible white or pink noise.
type NoiseGenerator struct {
	pink      bool
	amplitude float64
	rand      *rand.Rand

	// Voss-McCartney state
	pinkRows       [16]float64
	pinkRunningSum float64
	pinkIndex      int
}

// NewNoiseGenerator creates a seeded generator with peak amplitude amp.
func NewNoiseGenerator(pink bool, amp float64, seed int64) *NoiseGenerator {
	n := &NoiseGenerator{
		pink:      pink,
		amplitude: amp,
		rand:      rand.New(rand.NewSource(seed)),
	}
	for i := range n.pinkRows {
		n.pinkRows[i] = n.white()
		n.pinkRunningSum += n.pinkRows[i]
	}
	return n
}

func (n *NoiseGenerator) white() float64 {
	return n.rand.Float64()*2.0 - 1.0
}

// Next generates the next noise sample in [-amp, amp].
func (n *NoiseGenerator) Next() float64 {
	if !n.pink {
		return n.amplitude * n.white()
	}

	n.pinkIndex = (n.pinkIndex + 1) & 0xFFFF
	if n.pinkIndex != 0 {
		// the lowest set bit picks the row to refresh
		row := 0
		for idx := n.pinkIndex; idx&1 == 0; idx >>= 1 {
			row++
		}
		if row < len(n.pinkRows) {
			n.pinkRunningSum -= n.pinkRows[row]
			n.pinkRows[row] = n.white()
			n.pinkRunningSum += n.pinkRows[row]
		}
	}

	v := (n.pinkRunningSum + n.white()) / float64(len(n.pinkRows)+1)
	return n.amplitude * v
}

// Spec describes a rendered test signal.
type Spec struct {
	Waveform   Waveform
	Frequency  float64
	Amplitude  float64
	Duration   float64
	SampleRate float64
	Channels   int
	// Invert flips the polarity of the second channel.
	Invert bool
	Seed   int64
}

// Render produces an interleaved block for s. Every channel carries the same
// signal unless Invert is set.
func Render(s Spec) (*audio.Block, error) {
	format := audio.Format{SampleRate: s.SampleRate, Channels: s.Channels}
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if s.Duration < 0 {
		return nil, fmt.Errorf("%w: duration %v must be >= 0", audio.ErrInvalidParameter, s.Duration)
	}
	if s.Waveform == "" {
		s.Waveform = Sine
	}

	frames := int(math.Round(s.Duration * s.SampleRate))
	mono := make([]float64, frames)

	switch s.Waveform {
	case Noise, Pink:
		NewNoiseGenerator(s.Waveform == Pink, s.Amplitude, s.Seed).fill(mono)
	default:
		if s.Frequency <= 0 || s.Frequency >= s.SampleRate/2 {
			return nil, fmt.Errorf("%w: frequency %v outside (0, %v)", audio.ErrInvalidParameter, s.Frequency, s.SampleRate/2)
		}
		osc := New(s.SampleRate)
		osc.SetFrequency(s.Frequency)
		osc.SetAmplitude(s.Amplitude)
		osc.Process(s.Waveform, mono)
	}

	samples := make([]float64, frames*s.Channels)
	for i, v := range mono {
		for ch := 0; ch < s.Channels; ch++ {
			if ch == 1 && s.Invert {
				samples[i*s.Channels+ch] = -v
			} else {
				samples[i*s.Channels+ch] = v
			}
		}
	}

	return &audio.Block{
		Samples:    samples,
		Channels:   s.Channels,
		SampleRate: s.SampleRate,
	}, nil
}

func (n *NoiseGenerator) fill(buf []float64) {
	for i := range buf {
		buf[i] = n.Next()
	}
}

// Constant returns a block holding value in every sample.
func Constant(value, duration, sampleRate float64, channels int) *audio.Block {
	frames := int(math.Round(duration * sampleRate))
	samples := make([]float64, frames*channels)
	for i := range samples {
		samples[i] = value
	}
	return &audio.Block{Samples: samples, Channels: channels, SampleRate: sampleRate}
}
