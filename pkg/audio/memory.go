package audio

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// MemorySource is a Source over in-memory interleaved buffers. It stands in
// for the host in tests and backs the CLI once files are decoded.
type MemorySource struct {
	mu     sync.RWMutex
	tracks map[int]memoryTrack
	master *memoryTrack
}

type memoryTrack struct {
	format  Format
	samples []float64
}

// NewMemorySource creates an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{tracks: make(map[int]memoryTrack)}
}

// SetTrack installs interleaved samples for a track index.
func (m *MemorySource) SetTrack(index int, format Format, interleaved []float64) error {
	if err := format.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks[index] = memoryTrack{format: format, samples: interleaved}
	return nil
}

// SetMaster installs interleaved samples for the master bus.
func (m *MemorySource) SetMaster(format Format, interleaved []float64) error {
	if err := format.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.master = &memoryTrack{format: format, samples: interleaved}
	return nil
}

// Set installs samples for ref.
func (m *MemorySource) Set(ref Ref, format Format, interleaved []float64) error {
	if ref.Master {
		return m.SetMaster(format, interleaved)
	}
	return m.SetTrack(ref.Track, format, interleaved)
}

func (m *MemorySource) lookup(ref Ref) (memoryTrack, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if ref.Master {
		if m.master == nil {
			return memoryTrack{}, fmt.Errorf("%w: master", ErrTrackNotFound)
		}
		return *m.master, nil
	}
	t, ok := m.tracks[ref.Track]
	if !ok {
		return memoryTrack{}, fmt.Errorf("%w: index %d", ErrTrackNotFound, ref.Track)
	}
	return t, nil
}

// Format implements Source.
func (m *MemorySource) Format(_ context.Context, ref Ref) (Format, error) {
	t, err := m.lookup(ref)
	if err != nil {
		return Format{}, err
	}
	return t.format, nil
}

// Length returns the program length of ref in seconds.
func (m *MemorySource) Length(ref Ref) (float64, error) {
	t, err := m.lookup(ref)
	if err != nil {
		return 0, err
	}
	return float64(len(t.samples)/t.format.Channels) / t.format.SampleRate, nil
}

// Samples implements Source. The returned block owns a copy of the data.
func (m *MemorySource) Samples(ctx context.Context, ref Ref, start, duration float64) (*Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := m.lookup(ref)
	if err != nil {
		return nil, err
	}

	ch := t.format.Channels
	frames := len(t.samples) / ch
	first := int(math.Round(start * t.format.SampleRate))
	n := int(math.Round(duration * t.format.SampleRate))
	if first < 0 || n < 0 || first+n > frames {
		return nil, fmt.Errorf("%w: %s has %.3fs, requested [%.3fs, %.3fs)",
			ErrTimeRangeUnavailable, ref, float64(frames)/t.format.SampleRate, start, start+duration)
	}

	data := make([]float64, n*ch)
	copy(data, t.samples[first*ch:(first+n)*ch])

	return &Block{
		Samples:    data,
		Channels:   ch,
		SampleRate: t.format.SampleRate,
	}, nil
}
