package compliance

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/justyntemme/mastermeter/pkg/audio"
	"github.com/justyntemme/mastermeter/pkg/dsp/analysis"
	"github.com/justyntemme/mastermeter/pkg/engine"
	"github.com/justyntemme/mastermeter/pkg/logging"
)

// Report aggregates a loudness and dynamics measurement with preset verdicts.
type Report struct {
	Ref      audio.Ref               `json:"ref" msgpack:"ref"`
	Loudness analysis.LoudnessResult `json:"loudness" msgpack:"loudness"`
	Dynamics analysis.DynamicsResult `json:"dynamics" msgpack:"dynamics"`
	Verdicts []Verdict               `json:"verdicts" msgpack:"verdicts"`
}

// Passed reports whether every verdict passed.
func (r Report) Passed() bool {
	for _, v := range r.Verdicts {
		if !v.Pass {
			return false
		}
	}
	return len(r.Verdicts) > 0
}

// Verdict returns the verdict for a preset name.
func (r Report) Verdict(name string) (Verdict, bool) {
	for _, v := range r.Verdicts {
		if key(v.Preset) == key(name) {
			return v, true
		}
	}
	return Verdict{}, false
}

// SpectrumSummary condenses a spectrum into the figures a report shows.
type SpectrumSummary struct {
	Weighting         string                `json:"weighting" msgpack:"weighting"`
	FFTSize           int                   `json:"fft_size" msgpack:"fft_size"`
	PeakFrequencyHz   float64               `json:"peak_frequency_hz" msgpack:"peak_frequency_hz"`
	PeakMagnitudeDB   float64               `json:"peak_magnitude_db" msgpack:"peak_magnitude_db"`
	TonalBalance      analysis.TonalBalance `json:"tonal_balance" msgpack:"tonal_balance"`
	FrequencyResponse string                `json:"frequency_response" msgpack:"frequency_response"`
	ResponseStdDB     float64               `json:"response_std_db" msgpack:"response_std_db"`
	Octaves           []analysis.BandLevel  `json:"octaves" msgpack:"octaves"`
}

// Summarize reduces a spectrum result.
func Summarize(s analysis.SpectrumResult) SpectrumSummary {
	freq, mag := s.PeakFrequency()
	response, std := s.FrequencyResponse()
	return SpectrumSummary{
		Weighting:         s.Weighting,
		FFTSize:           s.FFTSize,
		PeakFrequencyHz:   freq,
		PeakMagnitudeDB:   mag,
		TonalBalance:      s.TonalBalance(),
		FrequencyResponse: response,
		ResponseStdDB:     std,
		Octaves:           s.OctaveBands(analysis.StandardOctaveBands()),
	}
}

// TrackReport is the comprehensive analysis of one program.
type TrackReport struct {
	Ref      audio.Ref               `json:"ref" msgpack:"ref"`
	Window   audio.Window            `json:"window" msgpack:"window"`
	Loudness analysis.LoudnessResult `json:"loudness" msgpack:"loudness"`
	Spectrum SpectrumSummary         `json:"spectrum" msgpack:"spectrum"`
	Stereo   *analysis.StereoResult  `json:"stereo,omitempty" msgpack:"stereo,omitempty"`
	Dynamics analysis.DynamicsResult `json:"dynamics" msgpack:"dynamics"`
}

// MasterReport is the master-chain analysis: compliance against every
// registered preset plus tonal and dynamic quality.
type MasterReport struct {
	TrackReport
	Verdicts  []Verdict `json:"verdicts" msgpack:"verdicts"`
	Broadcast bool      `json:"broadcast_compliant" msgpack:"broadcast_compliant"`
	Streaming bool      `json:"streaming_compliant" msgpack:"streaming_compliant"`
}

// Reporter runs compliance checks through an engine.
type Reporter struct {
	eng *engine.Engine
	reg *Registry
	log *logging.Logger
}

// NewReporter creates a reporter. A nil registry uses the built-in presets.
func NewReporter(eng *engine.Engine, reg *Registry) *Reporter {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Reporter{eng: eng, reg: reg, log: eng.Logger()}
}

// Registry returns the presets the reporter checks against.
func (r *Reporter) Registry() *Registry {
	return r.reg
}

// Check measures the window against one preset. The preset name is
// resolved before any audio is read.
func (r *Reporter) Check(ctx context.Context, ref audio.Ref, start, duration float64, preset string) (Report, error) {
	p, err := r.reg.Lookup(preset)
	if err != nil {
		return Report{}, err
	}
	return r.check(ctx, ref, start, duration, []Preset{p})
}

// CheckAll measures the window once and judges it against the named
// presets, or every registered preset when names is empty.
func (r *Reporter) CheckAll(ctx context.Context, ref audio.Ref, start, duration float64, names ...string) (Report, error) {
	presets, err := r.resolve(names)
	if err != nil {
		return Report{}, err
	}
	return r.check(ctx, ref, start, duration, presets)
}

func (r *Reporter) resolve(names []string) ([]Preset, error) {
	if len(names) == 0 {
		return r.reg.Presets(), nil
	}
	presets := make([]Preset, 0, len(names))
	for _, name := range names {
		p, err := r.reg.Lookup(name)
		if err != nil {
			return nil, err
		}
		presets = append(presets, p)
	}
	return presets, nil
}

func (r *Reporter) check(ctx context.Context, ref audio.Ref, start, duration float64, presets []Preset) (Report, error) {
	rep := Report{Ref: ref}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rep.Loudness, err = r.eng.MeasureLoudness(gctx, ref, start, duration)
		return err
	})
	g.Go(func() error {
		var err error
		rep.Dynamics, err = r.eng.AnalyzeDynamics(gctx, ref, start, duration)
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	rep.Verdicts = verdicts(rep.Loudness, presets)
	r.log.WithFields(logging.Fields{
		"ref":     ref.String(),
		"presets": len(presets),
		"passed":  rep.Passed(),
	}).Debug("compliance checked")
	return rep, nil
}

func verdicts(l analysis.LoudnessResult, presets []Preset) []Verdict {
	out := make([]Verdict, len(presets))
	for i, p := range presets {
		out[i] = p.Evaluate(l)
	}
	return out
}

// Comprehensive runs every analyzer family over the window using the
// configured FFT size and spectrum weighting.
func (r *Reporter) Comprehensive(ctx context.Context, ref audio.Ref, start, duration float64) (TrackReport, error) {
	sc := r.eng.Config().Spectrum
	all, err := r.eng.AnalyzeAll(ctx, ref, start, duration, sc.FFTSize, sc.Weighting)
	if err != nil {
		return TrackReport{}, err
	}
	return TrackReport{
		Ref:      ref,
		Window:   all.Window,
		Loudness: all.Loudness,
		Spectrum: Summarize(all.Spectrum),
		Stereo:   all.Stereo,
		Dynamics: all.Dynamics,
	}, nil
}

// MasterChain analyzes the master bus and judges it against every
// registered preset.
func (r *Reporter) MasterChain(ctx context.Context, start, duration float64) (MasterReport, error) {
	track, err := r.Comprehensive(ctx, audio.MasterRef(), start, duration)
	if err != nil {
		return MasterReport{}, fmt.Errorf("master chain: %w", err)
	}

	rep := MasterReport{
		TrackReport: track,
		Verdicts:    verdicts(track.Loudness, r.reg.Presets()),
	}
	rep.Broadcast = categoryPasses(rep.Verdicts, Broadcast)
	rep.Streaming = categoryPasses(rep.Verdicts, Streaming)

	r.log.WithFields(logging.Fields{
		"integrated": track.Loudness.IntegratedLUFS,
		"broadcast":  rep.Broadcast,
		"streaming":  rep.Streaming,
	}).Debug("master chain analyzed")
	return rep, nil
}

// categoryPasses reports whether at least one preset of the category
// passed.
func categoryPasses(vs []Verdict, category string) bool {
	for _, v := range vs {
		if v.Category == category && v.Pass {
			return true
		}
	}
	return false
}
