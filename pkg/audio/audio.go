// Package audio defines the sample data model shared by the analyzers and the
// capability through which the engine reads PCM from the host.
package audio

import (
	"fmt"
	"math"
)

// Channel counts supported by the engine.
const (
	Mono   = 1
	Stereo = 2
)

// Format describes the PCM layout of a track or the master bus.
type Format struct {
	SampleRate float64 `json:"sample_rate" msgpack:"sample_rate"`
	Channels   int     `json:"channels" msgpack:"channels"`
}

// Validate checks that the format is one the engine can analyze.
func (f Format) Validate() error {
	if !(f.SampleRate > 0) || math.IsInf(f.SampleRate, 0) {
		return fmt.Errorf("%w: sample_rate must be > 0, got %v", ErrInvalidWindow, f.SampleRate)
	}
	if f.Channels != Mono && f.Channels != Stereo {
		return fmt.Errorf("%w: channel_count must be 1 or 2, got %d", ErrUnsupportedChannelLayout, f.Channels)
	}
	return nil
}

// Block is a contiguous run of interleaved samples: [ch0, ch1, ch0, ch1, ...].
// Offset is the block start in seconds relative to the measurement window
// start. Blocks are treated as immutable once produced.
type Block struct {
	Samples    []float64
	Channels   int
	SampleRate float64
	Offset     float64
}

// Frames returns the number of complete frames in the block.
func (b *Block) Frames() int {
	if b == nil || b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Window is the span over which an analysis runs.
type Window struct {
	Start      float64 `json:"start" msgpack:"start"`
	Duration   float64 `json:"duration" msgpack:"duration"`
	SampleRate float64 `json:"sample_rate" msgpack:"sample_rate"`
	Channels   int     `json:"channels" msgpack:"channels"`
}

// NewWindow builds a window over [start, start+duration) in the given format.
func NewWindow(start, duration float64, format Format) Window {
	return Window{
		Start:      start,
		Duration:   duration,
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
	}
}

// Validate enforces duration > 0, start >= 0, sample_rate > 0 and a mono or
// stereo layout.
func (w Window) Validate() error {
	if !(w.Duration > 0) || math.IsInf(w.Duration, 0) {
		return fmt.Errorf("%w: duration must be > 0, got %v", ErrInvalidWindow, w.Duration)
	}
	if w.Start < 0 || math.IsNaN(w.Start) {
		return fmt.Errorf("%w: start must be >= 0, got %v", ErrInvalidWindow, w.Start)
	}
	return w.Format().Validate()
}

// Format returns the PCM layout of the window.
func (w Window) Format() Format {
	return Format{SampleRate: w.SampleRate, Channels: w.Channels}
}

// Frames returns the number of frames the window spans.
func (w Window) Frames() int {
	return int(math.Round(w.Duration * w.SampleRate))
}
