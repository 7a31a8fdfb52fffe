package audio

import (
	"context"
	"fmt"
	"math"
)

// Ref selects the program an analysis reads: a track by index or the master bus.
type Ref struct {
	Track  int  `json:"track" msgpack:"track"`
	Master bool `json:"master" msgpack:"master"`
}

// TrackRef returns a reference to the track at index.
func TrackRef(index int) Ref {
	return Ref{Track: index}
}

// MasterRef returns a reference to the master bus.
func MasterRef() Ref {
	return Ref{Master: true}
}

// String returns "master" or "track N".
func (r Ref) String() string {
	if r.Master {
		return "master"
	}
	return fmt.Sprintf("track %d", r.Track)
}

// Source supplies PCM from the host. Implementations may block (network or
// disk I/O) and must honour ctx. Samples fails with ErrTrackNotFound or
// ErrTimeRangeUnavailable; the engine never retries.
type Source interface {
	// Format reports the sample rate and channel count of ref.
	Format(ctx context.Context, ref Ref) (Format, error)
	// Samples returns the audio of ref over [start, start+duration) seconds.
	Samples(ctx context.Context, ref Ref, start, duration float64) (*Block, error)
}

// Stream reads the window from src in chunks of chunkSeconds and hands every
// block to fn in order. ctx is checked between chunks, so a canceled
// measurement stops at the next chunk boundary. Block offsets are relative
// to the window start. It returns the number of frames delivered.
func Stream(ctx context.Context, src Source, ref Ref, win Window, chunkSeconds float64, fn func(*Block) error) (int, error) {
	total := win.Frames()
	chunk := int(math.Round(chunkSeconds * win.SampleRate))
	if chunk < 1 {
		chunk = total
	}

	done := 0
	for done < total {
		if err := ctx.Err(); err != nil {
			return done, fmt.Errorf("%s: measurement canceled: %w", ref, err)
		}

		n := chunk
		if total-done < n {
			n = total - done
		}
		offset := float64(done) / win.SampleRate

		blk, err := src.Samples(ctx, ref, win.Start+offset, float64(n)/win.SampleRate)
		if err != nil {
			return done, fmt.Errorf("%s at %.3fs: %w", ref, win.Start+offset, err)
		}
		if blk == nil || blk.Frames() == 0 {
			break
		}
		if blk.Channels != win.Channels {
			return done, fmt.Errorf("%w: %s delivered %d channels, window expects %d",
				ErrUnsupportedChannelLayout, ref, blk.Channels, win.Channels)
		}

		view := *blk
		if view.Frames() > n {
			view.Samples = view.Samples[:n*view.Channels]
		}
		view.Offset = offset
		view.SampleRate = win.SampleRate

		if err := fn(&view); err != nil {
			return done, err
		}
		done += view.Frames()
	}

	return done, nil
}
