package mastering

import (
	"fmt"
	"math"

	"github.com/justyntemme/mastermeter/pkg/audio"
	"github.com/justyntemme/mastermeter/pkg/dsp/gain"
)

// slewEpsilon absorbs rounding when checking rates.
const slewEpsilon = 1e-9

// Point is one automation breakpoint.
type Point struct {
	Time   float64 `json:"time" msgpack:"time"`
	GainDB float64 `json:"gain_db" msgpack:"gain_db"`
}

// Curve is a gain automation envelope. Points are strictly increasing in
// time and gain is linear in dB between them.
type Curve struct {
	Points []Point `json:"points" msgpack:"points"`
}

// Len returns the number of points.
func (c Curve) Len() int { return len(c.Points) }

// GainAt interpolates the gain at t. Before the first and after the last
// point the end values hold. An empty curve is unity.
func (c Curve) GainAt(t float64) float64 {
	pts := c.Points
	switch {
	case len(pts) == 0:
		return 0
	case t <= pts[0].Time:
		return pts[0].GainDB
	case t >= pts[len(pts)-1].Time:
		return pts[len(pts)-1].GainDB
	}

	lo, hi := 0, len(pts)-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if pts[mid].Time <= t {
			lo = mid
		} else {
			hi = mid
		}
	}
	a, b := pts[lo], pts[hi]
	frac := (t - a.Time) / (b.Time - a.Time)
	return a.GainDB + frac*(b.GainDB-a.GainDB)
}

// MaxSlope returns the steepest rate of change between adjacent points in
// dB per second.
func (c Curve) MaxSlope() float64 {
	var slope float64
	for i := 1; i < len(c.Points); i++ {
		a, b := c.Points[i-1], c.Points[i]
		slope = math.Max(slope, math.Abs(b.GainDB-a.GainDB)/(b.Time-a.Time))
	}
	return slope
}

// Validate checks ordering and, when maxStepDBPerSec > 0, the slew limit.
func (c Curve) Validate(maxStepDBPerSec float64) error {
	for i := 1; i < len(c.Points); i++ {
		a, b := c.Points[i-1], c.Points[i]
		if !(b.Time > a.Time) {
			return fmt.Errorf("%w: point %d at %.3fs does not follow %.3fs",
				audio.ErrInvalidParameter, i, b.Time, a.Time)
		}
		if maxStepDBPerSec > 0 {
			rate := math.Abs(b.GainDB-a.GainDB) / (b.Time - a.Time)
			if rate > maxStepDBPerSec+slewEpsilon {
				return fmt.Errorf("%w: %.3f dB/s between %.3fs and %.3fs exceeds %.3f dB/s",
					audio.ErrInvalidParameter, rate, a.Time, b.Time, maxStepDBPerSec)
			}
		}
	}
	return nil
}

// Simplify drops points whose gain lies within tolDB of the chord between
// the points kept around them. The first and last points always survive.
// A chord slope is an average of the slopes it replaces, so a slew-limited
// curve stays slew-limited.
func (c Curve) Simplify(tolDB float64) Curve {
	n := len(c.Points)
	if n <= 2 || !(tolDB > 0) {
		return Curve{Points: append([]Point(nil), c.Points...)}
	}

	keep := make([]bool, n)
	keep[0], keep[n-1] = true, true

	type span struct{ lo, hi int }
	stack := []span{{0, n - 1}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if s.hi-s.lo < 2 {
			continue
		}

		a, b := c.Points[s.lo], c.Points[s.hi]
		worst, at := 0.0, -1
		for i := s.lo + 1; i < s.hi; i++ {
			p := c.Points[i]
			chord := a.GainDB + (p.Time-a.Time)/(b.Time-a.Time)*(b.GainDB-a.GainDB)
			if d := math.Abs(p.GainDB - chord); d > worst {
				worst, at = d, i
			}
		}
		if worst > tolDB {
			keep[at] = true
			stack = append(stack, span{s.lo, at}, span{at, s.hi})
		}
	}

	out := make([]Point, 0, n)
	for i, p := range c.Points {
		if keep[i] {
			out = append(out, p)
		}
	}
	return Curve{Points: out}
}

// Apply returns a copy of b with the curve applied frame by frame. start is
// the program time of the block's first frame.
func (c Curve) Apply(b *audio.Block, start float64) *audio.Block {
	out := &audio.Block{
		Samples:    make([]float64, len(b.Samples)),
		Channels:   b.Channels,
		SampleRate: b.SampleRate,
		Offset:     b.Offset,
	}
	frames := b.Frames()
	for i := 0; i < frames; i++ {
		g := gain.DbToLinear(c.GainAt(start + float64(i)/b.SampleRate))
		for ch := 0; ch < b.Channels; ch++ {
			idx := i*b.Channels + ch
			out.Samples[idx] = b.Samples[idx] * g
		}
	}
	return out
}
