package mastering

import (
	"fmt"

	"github.com/justyntemme/mastermeter/pkg/audio"
	"github.com/justyntemme/mastermeter/pkg/config"
	"github.com/justyntemme/mastermeter/pkg/dsp/analysis"
	"github.com/justyntemme/mastermeter/pkg/dsp/gain"
)

// Limits bounds automation planning.
type Limits struct {
	MinGainDB float64
	MaxGainDB float64
	// SilenceFloor marks blocks at or below it as silent; they hold the
	// previous gain instead of chasing the target.
	SilenceFloor float64
}

// DefaultLimits returns the [-24, +24] dB range with the default silence
// sentinel.
func DefaultLimits() Limits {
	cfg := config.Default()
	return LimitsFrom(cfg)
}

// LimitsFrom takes the gain range and silence floor from cfg.
func LimitsFrom(cfg config.Config) Limits {
	return Limits{
		MinGainDB:    cfg.Mastering.MinGainDB,
		MaxGainDB:    cfg.Mastering.MaxGainDB,
		SilenceFloor: cfg.Loudness.SilenceFloor,
	}
}

// AutomationCurve plans a curve with DefaultLimits.
func AutomationCurve(points []analysis.BlockLoudness, targetLU, maxStepDBPerSec float64) (Curve, error) {
	return DefaultLimits().AutomationCurve(points, targetLU, maxStepDBPerSec)
}

// AutomationCurve converts a loudness-over-time stream into corrective gain.
// Each point wants target - L clamped to the gain range; the slew limiter
// then keeps every adjacent pair within maxStepDBPerSec. The first point is
// not slewed.
func (lim Limits) AutomationCurve(points []analysis.BlockLoudness, targetLU, maxStepDBPerSec float64) (Curve, error) {
	if len(points) == 0 {
		return Curve{}, fmt.Errorf("%w: loudness stream is empty", audio.ErrInvalidParameter)
	}
	if !(maxStepDBPerSec > 0) || !finite(maxStepDBPerSec) {
		return Curve{}, fmt.Errorf("%w: max_step_db_per_sec must be > 0, got %v", audio.ErrInvalidParameter, maxStepDBPerSec)
	}
	if !finite(targetLU) {
		return Curve{}, fmt.Errorf("%w: target_lu must be finite, got %v", audio.ErrInvalidParameter, targetLU)
	}
	if lim.MinGainDB > lim.MaxGainDB {
		return Curve{}, fmt.Errorf("%w: gain range [%v, %v] is empty", audio.ErrInvalidParameter, lim.MinGainDB, lim.MaxGainDB)
	}

	out := make([]Point, len(points))
	prev := 0.0
	for i, p := range points {
		if !finite(p.Time) || !finite(p.LUFS) {
			return Curve{}, fmt.Errorf("%w: point %d is not finite", audio.ErrInvalidParameter, i)
		}
		if i > 0 && !(p.Time > points[i-1].Time) {
			return Curve{}, fmt.Errorf("%w: time %.3fs at point %d does not follow %.3fs",
				audio.ErrInvalidParameter, p.Time, i, points[i-1].Time)
		}

		want := prev
		if p.LUFS > lim.SilenceFloor {
			want = gain.Clamp(targetLU-p.LUFS, lim.MinGainDB, lim.MaxGainDB)
		}
		if i > 0 {
			step := maxStepDBPerSec * (p.Time - points[i-1].Time)
			want = gain.Clamp(want, prev-step, prev+step)
		}

		out[i] = Point{Time: p.Time, GainDB: want}
		prev = want
	}
	return Curve{Points: out}, nil
}
