// Package engine runs the analyzers over windows read from an audio.Source.
//
// Each call is self-contained: it validates the request, reads the window in
// chunks, feeds a fresh analyzer and returns a plain result. No state is
// shared between calls, so an Engine may be used from many goroutines.
package engine

import (
	"context"
	"fmt"

	"github.com/justyntemme/mastermeter/pkg/audio"
	"github.com/justyntemme/mastermeter/pkg/config"
	"github.com/justyntemme/mastermeter/pkg/dsp/analysis"
	"github.com/justyntemme/mastermeter/pkg/logging"
)

// Engine measures programs supplied by a Source.
type Engine struct {
	src  audio.Source
	cfg  config.Config
	log  *logging.Logger
	prof *Profiler
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg config.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithProfiler records the duration of every public measurement.
func WithProfiler(p *Profiler) Option {
	return func(e *Engine) { e.prof = p }
}

// New creates an engine over src.
func New(src audio.Source, opts ...Option) (*Engine, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: source is nil", audio.ErrInvalidParameter)
	}
	e := &Engine{src: src, cfg: config.Default(), log: logging.Discard()}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", audio.ErrInvalidParameter, err)
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() config.Config {
	return e.cfg
}

// Logger returns the engine logger.
func (e *Engine) Logger() *logging.Logger {
	return e.log
}

// Profiler returns the profiler set with WithProfiler, or nil.
func (e *Engine) Profiler() *Profiler {
	return e.prof
}

// Window resolves a measurement window for ref. The duration is checked
// before the source is consulted.
func (e *Engine) Window(ctx context.Context, ref audio.Ref, start, duration float64) (audio.Window, error) {
	probe := audio.Window{Start: start, Duration: duration, SampleRate: 1, Channels: audio.Mono}
	if err := probe.Validate(); err != nil {
		return audio.Window{}, err
	}

	format, err := e.src.Format(ctx, ref)
	if err != nil {
		return audio.Window{}, fmt.Errorf("%s: %w", ref, err)
	}
	win := audio.NewWindow(start, duration, format)
	if err := win.Validate(); err != nil {
		return audio.Window{}, fmt.Errorf("%s: %w", ref, err)
	}
	return win, nil
}

func (e *Engine) stream(ctx context.Context, ref audio.Ref, win audio.Window, fn func(*audio.Block) error) (int, error) {
	return audio.Stream(ctx, e.src, ref, win, e.cfg.Source.ChunkSeconds, fn)
}

func (e *Engine) measure(ctx context.Context, ref audio.Ref, start, duration float64) (*analysis.LoudnessMeter, audio.Window, error) {
	win, err := e.Window(ctx, ref, start, duration)
	if err != nil {
		return nil, win, err
	}

	meter, err := analysis.NewLoudnessMeter(win.Format(), e.cfg.Loudness, e.cfg.TruePeak)
	if err != nil {
		return nil, win, err
	}
	if win.Frames() < meter.MinFrames() {
		return nil, win, fmt.Errorf("%w: %s window of %.3fs is shorter than one %.0f ms gating block",
			audio.ErrInsufficientData, ref, duration, e.cfg.Loudness.MomentaryBlock*1000)
	}

	if _, err := e.stream(ctx, ref, win, meter.Process); err != nil {
		return nil, win, err
	}
	return meter, win, nil
}

// MeasureLoudness integrates loudness and true peak over the window.
func (e *Engine) MeasureLoudness(ctx context.Context, ref audio.Ref, start, duration float64) (analysis.LoudnessResult, error) {
	defer e.prof.Start("loudness")()

	meter, _, err := e.measure(ctx, ref, start, duration)
	if err != nil {
		return analysis.LoudnessResult{}, err
	}
	res, err := meter.Result()
	if err != nil {
		return analysis.LoudnessResult{}, fmt.Errorf("%s: %w", ref, err)
	}

	e.log.WithFields(logging.Fields{
		"ref":        ref.String(),
		"start":      start,
		"duration":   duration,
		"integrated": res.IntegratedLUFS,
		"true_peak":  res.TruePeakDBTP,
	}).Debug("loudness measured")
	return res, nil
}

// LoudnessOverTime returns the momentary block stream with absolute block
// start times, the input of automation planning.
func (e *Engine) LoudnessOverTime(ctx context.Context, ref audio.Ref, start, duration float64) ([]analysis.BlockLoudness, error) {
	defer e.prof.Start("loudness_series")()

	meter, win, err := e.measure(ctx, ref, start, duration)
	if err != nil {
		return nil, err
	}
	blocks := meter.Momentary()
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: %s delivered too little audio for one gating block", audio.ErrInsufficientData, ref)
	}
	for i := range blocks {
		blocks[i].Time += win.Start
	}

	e.log.WithFields(logging.Fields{"ref": ref.String(), "blocks": len(blocks)}).Debug("loudness stream measured")
	return blocks, nil
}

// AnalyzeSpectrum averages the magnitude spectrum of the window. fftSize
// and weighting are validated before any audio is read.
func (e *Engine) AnalyzeSpectrum(ctx context.Context, ref audio.Ref, start, duration float64, fftSize int, weighting string) (analysis.SpectrumResult, error) {
	defer e.prof.Start("spectrum")()

	if !analysis.ValidFFTSize(fftSize) {
		return analysis.SpectrumResult{}, fmt.Errorf("%w: fft_size %d must be a power of two in [%d, %d]",
			audio.ErrInvalidParameter, fftSize, analysis.MinFFTSize, analysis.MaxFFTSize)
	}
	win, err := e.Window(ctx, ref, start, duration)
	if err != nil {
		return analysis.SpectrumResult{}, err
	}

	sa, err := analysis.NewSpectrumAnalyzer(win.Format(), fftSize, weighting, e.cfg.Spectrum)
	if err != nil {
		return analysis.SpectrumResult{}, err
	}
	if _, err := e.stream(ctx, ref, win, sa.Process); err != nil {
		return analysis.SpectrumResult{}, err
	}
	res, err := sa.Result()
	if err != nil {
		return analysis.SpectrumResult{}, fmt.Errorf("%s: %w", ref, err)
	}

	e.log.WithFields(logging.Fields{"ref": ref.String(), "fft_size": fftSize, "padded": res.Padded}).Debug("spectrum analyzed")
	return res, nil
}

// AnalyzeStereo measures correlation and mid/side energy. Mono programs
// fail with ErrUnsupportedChannelLayout.
func (e *Engine) AnalyzeStereo(ctx context.Context, ref audio.Ref, start, duration float64) (analysis.StereoResult, error) {
	defer e.prof.Start("stereo")()

	win, err := e.Window(ctx, ref, start, duration)
	if err != nil {
		return analysis.StereoResult{}, err
	}
	sa, err := analysis.NewStereoAnalyzer(win.Format(), e.cfg.Loudness.SilenceFloor)
	if err != nil {
		return analysis.StereoResult{}, fmt.Errorf("%s: %w", ref, err)
	}
	if _, err := e.stream(ctx, ref, win, sa.Process); err != nil {
		return analysis.StereoResult{}, err
	}
	res, err := sa.Result()
	if err != nil {
		return analysis.StereoResult{}, fmt.Errorf("%s: %w", ref, err)
	}

	e.log.WithFields(logging.Fields{"ref": ref.String(), "correlation": res.Correlation}).Debug("stereo analyzed")
	return res, nil
}

// AnalyzeDynamics measures unweighted peak, RMS and crest factor.
func (e *Engine) AnalyzeDynamics(ctx context.Context, ref audio.Ref, start, duration float64) (analysis.DynamicsResult, error) {
	defer e.prof.Start("dynamics")()

	win, err := e.Window(ctx, ref, start, duration)
	if err != nil {
		return analysis.DynamicsResult{}, err
	}
	da := analysis.NewDynamicsAnalyzer(e.cfg.Loudness.SilenceFloor)
	_, err = e.stream(ctx, ref, win, func(b *audio.Block) error {
		da.Process(b)
		return nil
	})
	if err != nil {
		return analysis.DynamicsResult{}, err
	}
	res, err := da.Result()
	if err != nil {
		return analysis.DynamicsResult{}, fmt.Errorf("%s: %w", ref, err)
	}

	e.log.WithFields(logging.Fields{"ref": ref.String(), "crest": res.CrestFactorDB}).Debug("dynamics analyzed")
	return res, nil
}
