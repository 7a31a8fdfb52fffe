package oscillator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/mastermeter/pkg/audio"
)

func TestSineAmplitudeAndRMS(t *testing.T) {
	b, err := Render(Spec{Waveform: Sine, Frequency: 1000, Amplitude: 0.5, Duration: 1, SampleRate: 48000, Channels: 1})
	require.NoError(t, err)
	require.Len(t, b.Samples, 48000)

	var peak, sum float64
	for _, v := range b.Samples {
		peak = math.Max(peak, math.Abs(v))
		sum += v * v
	}
	assert.InDelta(t, 0.5, peak, 1e-9)
	assert.InDelta(t, 0.5/math.Sqrt2, math.Sqrt(sum/48000), 1e-6)
}

func TestRenderStereoInvert(t *testing.T) {
	b, err := Render(Spec{Waveform: Triangle, Frequency: 440, Amplitude: 1, Duration: 0.01, SampleRate: 44100, Channels: 2, Invert: true})
	require.NoError(t, err)
	for i := 0; i < b.Frames(); i++ {
		assert.Equal(t, b.Samples[2*i], -b.Samples[2*i+1])
	}
}

func TestNoiseIsReproducible(t *testing.T) {
	spec := Spec{Waveform: Pink, Amplitude: 0.8, Duration: 0.1, SampleRate: 48000, Channels: 1, Seed: 7}
	a, err := Render(spec)
	require.NoError(t, err)
	b, err := Render(spec)
	require.NoError(t, err)
	assert.Equal(t, a.Samples, b.Samples)

	for _, v := range a.Samples {
		assert.LessOrEqual(t, math.Abs(v), 0.8)
	}
}

func TestRenderRejects(t *testing.T) {
	_, err := Render(Spec{Waveform: Sine, Frequency: 30000, Amplitude: 1, Duration: 1, SampleRate: 48000, Channels: 1})
	assert.ErrorIs(t, err, audio.ErrInvalidParameter)

	_, err = Render(Spec{Waveform: Sine, Frequency: 100, Amplitude: 1, Duration: 1, SampleRate: 48000, Channels: 6})
	assert.ErrorIs(t, err, audio.ErrUnsupportedChannelLayout)

	_, err = ParseWaveform("wobble")
	assert.ErrorIs(t, err, audio.ErrInvalidParameter)
}

func TestConstant(t *testing.T) {
	b := Constant(-0.25, 0.5, 1000, 2)
	assert.Equal(t, 500, b.Frames())
	assert.Equal(t, -0.25, b.Samples[len(b.Samples)-1])
}
