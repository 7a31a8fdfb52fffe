package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/mastermeter/pkg/audio"
	"github.com/justyntemme/mastermeter/pkg/dsp/oscillator"
)

func stereoOf(left, right []float64) *audio.Block {
	b := &audio.Block{Channels: 2, SampleRate: 48000, Samples: make([]float64, 2*len(left))}
	for i := range left {
		b.Samples[2*i] = left[i]
		b.Samples[2*i+1] = right[i]
	}
	return b
}

func TestStereoCorrelation(t *testing.T) {
	noise, err := oscillator.Render(oscillator.Spec{Waveform: oscillator.Noise, Amplitude: 0.5, Duration: 1, SampleRate: 48000, Channels: 1, Seed: 3})
	require.NoError(t, err)
	other, err := oscillator.Render(oscillator.Spec{Waveform: oscillator.Noise, Amplitude: 0.5, Duration: 1, SampleRate: 48000, Channels: 1, Seed: 4})
	require.NoError(t, err)

	inverted := make([]float64, len(noise.Samples))
	for i, v := range noise.Samples {
		inverted[i] = -v
	}

	tests := []struct {
		name   string
		block  *audio.Block
		want   float64
		delta  float64
		status PhaseStatus
	}{
		{"identical", sine(t, 1000, 0.8, 1.0, 48000, 2), 1.0, 1e-9, PhaseInPhase},
		{"inverted", stereoOf(noise.Samples, inverted), -1.0, 1e-9, PhaseOutOfPhase},
		{"independent", stereoOf(noise.Samples, other.Samples), 0.0, 0.05, PhasePartiallyCorrelated},
		{"silence", oscillator.Constant(0, 0.5, 48000, 2), 1.0, 0, PhaseInPhase},
		{"one side silent", stereoOf(noise.Samples, make([]float64, len(noise.Samples))), 0.0, 0, PhasePartiallyCorrelated},
		{"dc", oscillator.Constant(0.5, 0.5, 48000, 2), 1.0, 1e-9, PhaseInPhase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := AnalyzeStereo(tt.block, -100)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, res.Correlation, tt.delta)
			assert.GreaterOrEqual(t, res.Correlation, -1.0)
			assert.LessOrEqual(t, res.Correlation, 1.0)
			assert.Equal(t, tt.status, res.PhaseStatus)
		})
	}
}

func TestStereoMidSide(t *testing.T) {
	mono, err := AnalyzeStereo(sine(t, 1000, 1.0, 1.0, 48000, 2), -100)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, mono.MidEnergy, 1e-6)
	assert.Zero(t, mono.SideEnergy)
	assert.Zero(t, mono.WidthRatio)
	assert.InDelta(t, 1.0, mono.MonoCompatibility, 1e-9)
	assert.Equal(t, -100.0, mono.SideLevelDB)
	assert.InDelta(t, 0.0, mono.Balance, 1e-12)

	inv, err := oscillator.Render(oscillator.Spec{Waveform: oscillator.Sine, Frequency: 1000, Amplitude: 1, Duration: 1, SampleRate: 48000, Channels: 2, Invert: true})
	require.NoError(t, err)
	wide, err := AnalyzeStereo(inv, -100)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, wide.WidthRatio, 1e-9)
	assert.InDelta(t, 0.0, wide.MonoCompatibility, 1e-9)
}

func TestStereoBalance(t *testing.T) {
	left := sine(t, 500, 1.0, 0.5, 48000, 1).Samples
	right := make([]float64, len(left))
	for i, v := range left {
		right[i] = 0.5 * v
	}

	res, err := AnalyzeStereo(stereoOf(left, right), -100)
	require.NoError(t, err)
	assert.InDelta(t, 20*math.Log10(0.5), res.ImbalanceDB, 1e-6)
	assert.InDelta(t, (0.25-1)/(0.25+1), res.Balance, 1e-6)
	assert.InDelta(t, 1.0, res.Correlation, 1e-9)
}

func TestStereoRejectsMono(t *testing.T) {
	_, err := AnalyzeStereo(sine(t, 1000, 1.0, 0.1, 48000, 1), -100)
	assert.ErrorIs(t, err, audio.ErrUnsupportedChannelLayout)

	_, err = NewStereoAnalyzer(audio.Format{SampleRate: 48000, Channels: 1}, -100)
	assert.ErrorIs(t, err, audio.ErrUnsupportedChannelLayout)
}

func TestClassifyPhase(t *testing.T) {
	assert.Equal(t, PhaseInPhase, ClassifyPhase(0.95))
	assert.Equal(t, PhaseMostlyInPhase, ClassifyPhase(0.7))
	assert.Equal(t, PhasePartiallyCorrelated, ClassifyPhase(0))
	assert.Equal(t, PhaseMostlyOutOfPhase, ClassifyPhase(-0.7))
	assert.Equal(t, PhaseOutOfPhase, ClassifyPhase(-1))
	assert.Equal(t, "Out of Phase", PhaseOutOfPhase.String())
}

func TestPhaseStatusText(t *testing.T) {
	for s := PhaseInPhase; s <= PhaseOutOfPhase; s++ {
		text, err := s.MarshalText()
		require.NoError(t, err)
		var got PhaseStatus
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, s, got)
	}

	var ps PhaseStatus
	assert.ErrorIs(t, ps.UnmarshalText([]byte("sideways")), audio.ErrInvalidParameter)
}

func TestStereoSkipsNonFinite(t *testing.T) {
	mono := sine(t, 500, 0.5, 0.5, 48000, 1).Samples
	b := stereoOf(mono, mono)
	b.Samples[10] = math.NaN()
	b.Samples[21] = math.Inf(1)

	res, err := AnalyzeStereo(b, -100)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Correlation, 1e-3)
}
