package compliance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/mastermeter/pkg/audio"
	"github.com/justyntemme/mastermeter/pkg/dsp/gain"
	"github.com/justyntemme/mastermeter/pkg/dsp/oscillator"
	"github.com/justyntemme/mastermeter/pkg/engine"
)

const sr = 48000.0

// A full-scale 1 kHz sine reads about -3.0 LUFS mono and 0.0 LUFS stereo.
func program(t *testing.T, lufs float64, channels int) []float64 {
	t.Helper()
	fullScale := -3.0036
	if channels == audio.Stereo {
		fullScale = 0.0067
	}
	b, err := oscillator.Render(oscillator.Spec{
		Waveform:   oscillator.Sine,
		Frequency:  1000,
		Amplitude:  gain.DbToLinear(lufs - fullScale),
		Duration:   4,
		SampleRate: sr,
		Channels:   channels,
	})
	require.NoError(t, err)
	return b.Samples
}

func newReporter(t *testing.T) *Reporter {
	t.Helper()
	src := audio.NewMemorySource()
	require.NoError(t, src.SetTrack(0, audio.Format{SampleRate: sr, Channels: audio.Mono}, program(t, -14, audio.Mono)))
	require.NoError(t, src.SetMaster(audio.Format{SampleRate: sr, Channels: audio.Stereo}, program(t, -14, audio.Stereo)))
	e, err := engine.New(src)
	require.NoError(t, err)
	return NewReporter(e, nil)
}

func TestCheck(t *testing.T) {
	r := newReporter(t)
	ctx := context.Background()

	rep, err := r.Check(ctx, audio.TrackRef(0), 0, 4, "streaming")
	require.NoError(t, err)
	require.Len(t, rep.Verdicts, 1)
	v := rep.Verdicts[0]
	assert.True(t, v.Pass)
	assert.InDelta(t, 0, v.DeltaLU, 0.05)
	assert.InDelta(t, 10, v.PeakMarginDB, 0.05)
	assert.True(t, rep.Passed())
	assert.InDelta(t, 3.01, rep.Dynamics.CrestFactorDB, 0.05)

	rep, err = r.Check(ctx, audio.TrackRef(0), 0, 4, "broadcast")
	require.NoError(t, err)
	assert.False(t, rep.Passed())
	assert.InDelta(t, 9, rep.Verdicts[0].DeltaLU, 0.05)
	assert.False(t, rep.Verdicts[0].LoudnessOK)
	assert.True(t, rep.Verdicts[0].PeakOK)
}

func TestCheckUnknownPresetBeforeReading(t *testing.T) {
	e, err := engine.New(audio.NewMemorySource())
	require.NoError(t, err)
	r := NewReporter(e, nil)

	_, err = r.Check(context.Background(), audio.TrackRef(0), 0, 4, "vinyl")
	assert.ErrorIs(t, err, audio.ErrUnknownPreset)
	assert.NotErrorIs(t, err, audio.ErrTrackNotFound)
}

func TestCheckPropagatesSourceErrors(t *testing.T) {
	r := newReporter(t)
	_, err := r.Check(context.Background(), audio.TrackRef(3), 0, 4, "streaming")
	assert.ErrorIs(t, err, audio.ErrTrackNotFound)

	_, err = r.Check(context.Background(), audio.TrackRef(0), 2, 4, "streaming")
	assert.ErrorIs(t, err, audio.ErrTimeRangeUnavailable)
}

func TestCheckAll(t *testing.T) {
	r := newReporter(t)
	ctx := context.Background()

	rep, err := r.CheckAll(ctx, audio.TrackRef(0), 0, 4)
	require.NoError(t, err)
	assert.Len(t, rep.Verdicts, len(Builtin()))
	assert.False(t, rep.Passed())

	for name, pass := range map[string]bool{
		"streaming": true, "spotify": true, "youtube": true,
		"apple_music": false, "broadcast": false, "ebu_r128": false, "atsc_a85": false,
	} {
		v, ok := rep.Verdict(name)
		require.True(t, ok, name)
		assert.Equal(t, pass, v.Pass, name)
	}

	rep, err = r.CheckAll(ctx, audio.TrackRef(0), 0, 4, "spotify", "youtube")
	require.NoError(t, err)
	assert.Len(t, rep.Verdicts, 2)
	assert.True(t, rep.Passed())

	_, err = r.CheckAll(ctx, audio.TrackRef(0), 0, 4, "spotify", "vinyl")
	assert.ErrorIs(t, err, audio.ErrUnknownPreset)
}

func TestComprehensive(t *testing.T) {
	r := newReporter(t)

	rep, err := r.Comprehensive(context.Background(), audio.TrackRef(0), 0, 4)
	require.NoError(t, err)
	assert.Nil(t, rep.Stereo)
	assert.InDelta(t, -14, rep.Loudness.IntegratedLUFS, 0.05)
	assert.InDelta(t, 1000, rep.Spectrum.PeakFrequencyHz, sr/8192)
	assert.Equal(t, 8192, rep.Spectrum.FFTSize)
	assert.NotEmpty(t, rep.Spectrum.TonalBalance.Overall)
	assert.NotEmpty(t, rep.Spectrum.Octaves)
	assert.Equal(t, "highly_compressed", rep.Dynamics.Quality)
}

func TestMasterChain(t *testing.T) {
	r := newReporter(t)

	rep, err := r.MasterChain(context.Background(), 0, 4)
	require.NoError(t, err)
	assert.True(t, rep.Ref.Master)
	require.NotNil(t, rep.Stereo)
	assert.InDelta(t, 1.0, rep.Stereo.Correlation, 1e-9)
	assert.InDelta(t, -14, rep.Loudness.IntegratedLUFS, 0.05)
	assert.Len(t, rep.Verdicts, len(Builtin()))
	assert.True(t, rep.Streaming)
	assert.False(t, rep.Broadcast)
	assert.NotEmpty(t, rep.Spectrum.FrequencyResponse)
}

func TestMasterChainWithoutMaster(t *testing.T) {
	e, err := engine.New(audio.NewMemorySource())
	require.NoError(t, err)
	_, err = NewReporter(e, nil).MasterChain(context.Background(), 0, 4)
	assert.ErrorIs(t, err, audio.ErrTrackNotFound)
}
