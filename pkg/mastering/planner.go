package mastering

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/justyntemme/mastermeter/pkg/audio"
	"github.com/justyntemme/mastermeter/pkg/config"
	"github.com/justyntemme/mastermeter/pkg/dsp/analysis"
	"github.com/justyntemme/mastermeter/pkg/engine"
	"github.com/justyntemme/mastermeter/pkg/logging"
)

// Planner measures through an engine and plans gain from the results.
type Planner struct {
	eng    *engine.Engine
	cfg    config.Mastering
	limits Limits
	log    *logging.Logger
}

// NewPlanner uses the engine's configuration for gain limits and defaults.
func NewPlanner(eng *engine.Engine) *Planner {
	cfg := eng.Config()
	return &Planner{
		eng:    eng,
		cfg:    cfg.Mastering,
		limits: LimitsFrom(cfg),
		log:    eng.Logger(),
	}
}

// Defaults returns the configured target, ceiling and slew limit.
func (p *Planner) Defaults() config.Mastering {
	return p.cfg
}

// PlanNormalization measures the window and computes its offset.
func (p *Planner) PlanNormalization(ctx context.Context, ref audio.Ref, start, duration, targetLU, ceilingDBTP float64) (Normalization, error) {
	measured, err := p.eng.MeasureLoudness(ctx, ref, start, duration)
	if err != nil {
		return Normalization{}, err
	}
	n, err := p.limits.NormalizationOffset(measured, targetLU, ceilingDBTP)
	if err != nil {
		return Normalization{}, err
	}
	p.report(ref, n)
	return n, nil
}

// PlanAutomation measures loudness over time and converts it into a curve,
// thinned by the configured simplify tolerance.
func (p *Planner) PlanAutomation(ctx context.Context, ref audio.Ref, start, duration, targetLU, maxStepDBPerSec float64) (Curve, error) {
	blocks, err := p.eng.LoudnessOverTime(ctx, ref, start, duration)
	if err != nil {
		return Curve{}, err
	}
	curve, err := p.limits.AutomationCurve(blocks, targetLU, maxStepDBPerSec)
	if err != nil {
		return Curve{}, err
	}
	simplified := curve.Simplify(p.cfg.SimplifyTolerance)

	p.log.WithFields(logging.Fields{
		"ref":    ref.String(),
		"points": curve.Len(),
		"kept":   simplified.Len(),
	}).Debug("automation planned")
	return simplified, nil
}

// PlanMatch measures source and reference concurrently over the same window
// and computes the gain that matches source to reference.
func (p *Planner) PlanMatch(ctx context.Context, source, reference audio.Ref, start, duration, ceilingDBTP float64) (Normalization, error) {
	var src, dst analysis.LoudnessResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		src, err = p.eng.MeasureLoudness(gctx, source, start, duration)
		return err
	})
	g.Go(func() error {
		var err error
		dst, err = p.eng.MeasureLoudness(gctx, reference, start, duration)
		return err
	})
	if err := g.Wait(); err != nil {
		return Normalization{}, err
	}

	n, err := p.limits.MatchOffset(src, dst, ceilingDBTP)
	if err != nil {
		return Normalization{}, err
	}
	p.report(source, n)
	return n, nil
}

func (p *Planner) report(ref audio.Ref, n Normalization) {
	log := p.log.WithFields(logging.Fields{
		"ref":     ref.String(),
		"gain_db": n.GainDB,
		"target":  n.TargetLUFS,
	})
	if n.CeilingLimited {
		log.Warn("gain limited to %.2f dB by the %.1f dBTP ceiling", n.GainDB, n.CeilingDBTP)
		return
	}
	log.Debug("normalization planned")
}
