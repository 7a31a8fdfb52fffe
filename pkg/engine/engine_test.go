package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/mastermeter/pkg/audio"
	"github.com/justyntemme/mastermeter/pkg/config"
	"github.com/justyntemme/mastermeter/pkg/dsp/oscillator"
)

const sr = 48000.0

func render(t *testing.T, freq, amp, seconds float64, channels int) *audio.Block {
	t.Helper()
	b, err := oscillator.Render(oscillator.Spec{
		Waveform:   oscillator.Sine,
		Frequency:  freq,
		Amplitude:  amp,
		Duration:   seconds,
		SampleRate: sr,
		Channels:   channels,
	})
	require.NoError(t, err)
	return b
}

func newSource(t *testing.T) *audio.MemorySource {
	t.Helper()
	src := audio.NewMemorySource()
	mono := render(t, 1000, 1.0, 4, audio.Mono)
	require.NoError(t, src.SetTrack(0, audio.Format{SampleRate: sr, Channels: audio.Mono}, mono.Samples))
	stereo := render(t, 1000, 0.5, 4, audio.Stereo)
	require.NoError(t, src.SetMaster(audio.Format{SampleRate: sr, Channels: audio.Stereo}, stereo.Samples))
	return src
}

func newEngine(t *testing.T, src audio.Source) *Engine {
	t.Helper()
	e, err := New(src)
	require.NoError(t, err)
	return e
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, audio.ErrInvalidParameter)

	cfg := config.Default()
	cfg.Loudness.MomentaryBlock = 0
	_, err = New(audio.NewMemorySource(), WithConfig(cfg))
	assert.ErrorIs(t, err, audio.ErrInvalidParameter)
}

func TestMeasureLoudness(t *testing.T) {
	e := newEngine(t, newSource(t))

	res, err := e.MeasureLoudness(context.Background(), audio.TrackRef(0), 0, 4)
	require.NoError(t, err)
	assert.InDelta(t, -3.0, res.IntegratedLUFS, 0.05)
	assert.InDelta(t, 0.0, res.TruePeakDBTP, 0.01)
	assert.True(t, res.GatingApplied)

	// The window may start anywhere inside the program.
	res, err = e.MeasureLoudness(context.Background(), audio.TrackRef(0), 1.5, 2)
	require.NoError(t, err)
	assert.InDelta(t, -3.0, res.IntegratedLUFS, 0.05)
}

func TestMeasureLoudnessErrors(t *testing.T) {
	e := newEngine(t, newSource(t))
	ctx := context.Background()

	tests := []struct {
		name     string
		ref      audio.Ref
		start    float64
		duration float64
		want     error
	}{
		{"zero duration", audio.TrackRef(0), 0, 0, audio.ErrInvalidWindow},
		{"negative duration", audio.TrackRef(0), 0, -1, audio.ErrInvalidWindow},
		{"negative start", audio.TrackRef(0), -1, 1, audio.ErrInvalidWindow},
		{"unknown track", audio.TrackRef(7), 0, 1, audio.ErrTrackNotFound},
		{"past the end", audio.TrackRef(0), 3, 2, audio.ErrTimeRangeUnavailable},
		{"shorter than a block", audio.TrackRef(0), 0, 0.3, audio.ErrInsufficientData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.MeasureLoudness(ctx, tt.ref, tt.start, tt.duration)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestInvalidWindowDoesNotTouchSource(t *testing.T) {
	e := newEngine(t, audio.NewMemorySource())

	// An empty source would report ErrTrackNotFound if consulted.
	_, err := e.MeasureLoudness(context.Background(), audio.TrackRef(0), 0, 0)
	assert.ErrorIs(t, err, audio.ErrInvalidWindow)
	assert.NotErrorIs(t, err, audio.ErrTrackNotFound)
}

func TestCanceledContext(t *testing.T) {
	e := newEngine(t, newSource(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.MeasureLoudness(ctx, audio.TrackRef(0), 0, 4)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = e.AnalyzeAll(ctx, audio.MasterRef(), 0, 4, 4096, "none")
	assert.ErrorIs(t, err, context.Canceled)
}

// cancelingSource cancels the measurement after the first chunk is served.
type cancelingSource struct {
	audio.Source
	once   sync.Once
	cancel context.CancelFunc
	calls  int
}

func (c *cancelingSource) Samples(ctx context.Context, ref audio.Ref, start, duration float64) (*audio.Block, error) {
	c.calls++
	b, err := c.Source.Samples(ctx, ref, start, duration)
	c.once.Do(c.cancel)
	return b, err
}

func TestCancelMidStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &cancelingSource{Source: newSource(t), cancel: cancel}
	e := newEngine(t, src)

	res, err := e.MeasureLoudness(ctx, audio.TrackRef(0), 0, 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, src.calls)
	assert.Zero(t, res)
}

func TestLoudnessOverTime(t *testing.T) {
	e := newEngine(t, newSource(t))

	blocks, err := e.LoudnessOverTime(context.Background(), audio.TrackRef(0), 1, 2)
	require.NoError(t, err)
	// 2 s of 400 ms blocks at a 100 ms hop.
	require.Len(t, blocks, 17)
	assert.InDelta(t, 1.0, blocks[0].Time, 1e-9)
	assert.InDelta(t, 2.6, blocks[len(blocks)-1].Time, 1e-9)
	for _, b := range blocks {
		assert.InDelta(t, -3.0, b.LUFS, 0.1)
	}
}

func TestAnalyzeSpectrumValidatesFirst(t *testing.T) {
	e := newEngine(t, audio.NewMemorySource())
	ctx := context.Background()

	_, err := e.AnalyzeSpectrum(ctx, audio.TrackRef(0), 0, 1, 1000, "none")
	assert.ErrorIs(t, err, audio.ErrInvalidParameter)

	_, err = e.AnalyzeSpectrum(ctx, audio.TrackRef(0), 0, 1, 4096, "none")
	assert.ErrorIs(t, err, audio.ErrTrackNotFound)
}

func TestAnalyzeSpectrum(t *testing.T) {
	e := newEngine(t, newSource(t))

	res, err := e.AnalyzeSpectrum(context.Background(), audio.TrackRef(0), 0, 2, 4096, "none")
	require.NoError(t, err)
	assert.Len(t, res.Bins, 2048)
	freq, _ := res.PeakFrequency()
	assert.InDelta(t, 1000, freq, sr/4096)
}

func TestAnalyzeStereo(t *testing.T) {
	e := newEngine(t, newSource(t))
	ctx := context.Background()

	res, err := e.AnalyzeStereo(ctx, audio.MasterRef(), 0, 2)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Correlation, 1e-9)

	_, err = e.AnalyzeStereo(ctx, audio.TrackRef(0), 0, 2)
	assert.ErrorIs(t, err, audio.ErrUnsupportedChannelLayout)
}

func TestAnalyzeDynamics(t *testing.T) {
	e := newEngine(t, newSource(t))

	res, err := e.AnalyzeDynamics(context.Background(), audio.TrackRef(0), 0, 2)
	require.NoError(t, err)
	assert.InDelta(t, 3.01, res.CrestFactorDB, 0.05)
}

func TestAnalyzeAll(t *testing.T) {
	e := newEngine(t, newSource(t))
	ctx := context.Background()

	mono, err := e.AnalyzeAll(ctx, audio.TrackRef(0), 0, 2, 4096, "A")
	require.NoError(t, err)
	assert.Nil(t, mono.Stereo)
	assert.InDelta(t, -3.0, mono.Loudness.IntegratedLUFS, 0.05)
	assert.Equal(t, "A", mono.Spectrum.Weighting)
	assert.Equal(t, audio.Mono, mono.Window.Channels)

	stereo, err := e.AnalyzeAll(ctx, audio.MasterRef(), 0, 2, 4096, "none")
	require.NoError(t, err)
	require.NotNil(t, stereo.Stereo)
	assert.InDelta(t, 1.0, stereo.Stereo.Correlation, 1e-9)

	_, err = e.AnalyzeAll(ctx, audio.TrackRef(0), 0, 2, 4096, "B")
	assert.ErrorIs(t, err, audio.ErrUnknownWeighting)
}

func TestConcurrentCallsAgree(t *testing.T) {
	e := newEngine(t, newSource(t))
	want, err := e.MeasureLoudness(context.Background(), audio.MasterRef(), 0, 3)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]float64, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.MeasureLoudness(context.Background(), audio.MasterRef(), 0, 3)
			if err == nil {
				results[i] = res.IntegratedLUFS
			}
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want.IntegratedLUFS, got)
	}
}
