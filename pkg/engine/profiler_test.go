package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/mastermeter/pkg/audio"
)

func TestProfilerRecords(t *testing.T) {
	p := NewProfiler(3)
	for _, d := range []time.Duration{5, 1, 3, 9} {
		p.record("op", d*time.Millisecond)
	}

	tm, ok := p.Timing("op")
	require.True(t, ok)
	assert.Equal(t, uint64(4), tm.Count)
	assert.Equal(t, 18*time.Millisecond, tm.Total)
	assert.Equal(t, time.Millisecond, tm.Min)
	assert.Equal(t, 9*time.Millisecond, tm.Max)
	assert.Equal(t, 9*time.Millisecond, tm.Last)
	assert.Equal(t, 4500*time.Microsecond, tm.Average())

	// the oldest sample was overwritten
	assert.Equal(t, time.Millisecond, tm.Percentile(0))
	assert.Equal(t, 9*time.Millisecond, tm.Percentile(100))
	assert.Equal(t, 3*time.Millisecond, tm.Percentile(50))

	_, ok = p.Timing("missing")
	assert.False(t, ok)

	p.Reset()
	assert.Empty(t, p.Timings())
	assert.Equal(t, "no operations timed\n", p.Report())
}

func TestNilProfilerIsNoop(t *testing.T) {
	var p *Profiler
	assert.NotPanics(t, func() { p.Start("op")() })
}

func TestEngineProfiles(t *testing.T) {
	prof := NewProfiler(10)
	e, err := New(newSource(t), WithProfiler(prof))
	require.NoError(t, err)
	assert.Same(t, prof, e.Profiler())

	ctx := context.Background()
	_, err = e.MeasureLoudness(ctx, audio.TrackRef(0), 0, 2)
	require.NoError(t, err)
	_, err = e.AnalyzeDynamics(ctx, audio.TrackRef(0), 0, 2)
	require.NoError(t, err)
	_, err = e.MeasureLoudness(ctx, audio.TrackRef(0), 0, 2)
	require.NoError(t, err)

	timings := prof.Timings()
	require.Len(t, timings, 2)
	assert.Equal(t, "dynamics", timings[0].Name)
	assert.Equal(t, "loudness", timings[1].Name)
	assert.Equal(t, uint64(2), timings[1].Count)
	assert.Contains(t, prof.Report(), "loudness")
}
