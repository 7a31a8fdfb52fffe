package weighting

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/mastermeter/pkg/audio"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		in   string
		want Curve
	}{
		{"A", A}, {"a", A}, {"C", C}, {"k", K}, {"none", None}, {"Z", None}, {"", None},
	}
	for _, tt := range tests {
		got, err := Lookup(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := Lookup("B")
	assert.ErrorIs(t, err, audio.ErrUnknownWeighting)
	assert.ErrorIs(t, err, audio.ErrInvalidParameter)
}

func TestResponses(t *testing.T) {
	tests := []struct {
		curve string
		fs    float64
		freq  float64
		want  float64
		tol   float64
	}{
		{"A", 48000, 1000, 0, 0.01},
		{"A", 48000, 100, -19.1, 0.3},
		{"A", 44100, 31.5, -39.4, 0.5},
		{"C", 48000, 1000, 0, 0.01},
		{"C", 96000, 31.5, -3.0, 0.2},
		{"K", 48000, 1000, 0.7, 0.05},
		{"K", 44100, 10000, 4.0, 0.1},
		{"none", 48000, 50, 0, 1e-12},
	}

	for _, tt := range tests {
		got, err := ResponseDB(tt.curve, tt.fs, tt.freq)
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, tt.tol, "%s @ %.0f Hz, fs=%.0f", tt.curve, tt.freq, tt.fs)
	}
}

func TestCoefficientsFollowSampleRate(t *testing.T) {
	k44, err := Design(K, 44100)
	require.NoError(t, err)
	k48, err := Design(K, 48000)
	require.NoError(t, err)
	assert.NotEqual(t, k44[0], k48[0])
}

func TestApplyIsPure(t *testing.T) {
	fs := 48000.0
	n := 4800
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * 50 * float64(i) / fs)
	}
	blk := &audio.Block{Samples: samples, Channels: 1, SampleRate: fs}

	first, err := Apply("A", blk)
	require.NoError(t, err)
	second, err := Apply("A", blk)
	require.NoError(t, err)

	assert.Equal(t, first.Samples, second.Samples)
	assert.Equal(t, math.Sin(2*math.Pi*50/fs), blk.Samples[1])

	// 50 Hz is attenuated ~30 dB by A-weighting
	peak := 0.0
	for _, v := range first.Samples[n/2:] {
		peak = math.Max(peak, math.Abs(v))
	}
	assert.Less(t, peak, 0.1)
}

func TestApplyUnknown(t *testing.T) {
	_, err := Apply("ITU-468", &audio.Block{Samples: []float64{0}, Channels: 1, SampleRate: 48000})
	assert.ErrorIs(t, err, audio.ErrUnknownWeighting)
}
