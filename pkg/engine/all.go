package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/justyntemme/mastermeter/pkg/audio"
	"github.com/justyntemme/mastermeter/pkg/dsp/analysis"
)

// Analysis bundles every analyzer family over one window. Stereo is nil for
// mono programs.
type Analysis struct {
	Ref      audio.Ref               `json:"ref" msgpack:"ref"`
	Window   audio.Window            `json:"window" msgpack:"window"`
	Loudness analysis.LoudnessResult `json:"loudness" msgpack:"loudness"`
	Spectrum analysis.SpectrumResult `json:"spectrum" msgpack:"spectrum"`
	Stereo   *analysis.StereoResult  `json:"stereo,omitempty" msgpack:"stereo,omitempty"`
	Dynamics analysis.DynamicsResult `json:"dynamics" msgpack:"dynamics"`
}

// AnalyzeAll runs the loudness, spectrum, stereo and dynamics analyzers
// concurrently over the same window. The first failure cancels the rest and
// no partial Analysis is returned.
func (e *Engine) AnalyzeAll(ctx context.Context, ref audio.Ref, start, duration float64, fftSize int, weighting string) (Analysis, error) {
	defer e.prof.Start("all")()

	win, err := e.Window(ctx, ref, start, duration)
	if err != nil {
		return Analysis{}, err
	}

	out := Analysis{Ref: ref, Window: win}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		res, err := e.MeasureLoudness(gctx, ref, start, duration)
		out.Loudness = res
		return err
	})
	g.Go(func() error {
		res, err := e.AnalyzeSpectrum(gctx, ref, start, duration, fftSize, weighting)
		out.Spectrum = res
		return err
	})
	if win.Channels == audio.Stereo {
		g.Go(func() error {
			res, err := e.AnalyzeStereo(gctx, ref, start, duration)
			if err == nil {
				out.Stereo = &res
			}
			return err
		})
	}
	g.Go(func() error {
		res, err := e.AnalyzeDynamics(gctx, ref, start, duration)
		out.Dynamics = res
		return err
	})

	if err := g.Wait(); err != nil {
		return Analysis{}, err
	}

	e.log.WithField("ref", ref.String()).Debug("full analysis complete")
	return out, nil
}
