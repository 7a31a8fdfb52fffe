package main

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/justyntemme/mastermeter/pkg/audio"
	"github.com/justyntemme/mastermeter/pkg/audio/wavfile"
	"github.com/justyntemme/mastermeter/pkg/compliance"
	"github.com/justyntemme/mastermeter/pkg/dsp/gain"
	"github.com/justyntemme/mastermeter/pkg/dsp/oscillator"
	"github.com/justyntemme/mastermeter/pkg/mastering"
)

// measure parses the shared flags, opens the source and resolves the window.
func measure(o *options, args []string) (*env, audio.Ref, float64, float64, error) {
	if err := o.parse(args); err != nil {
		return nil, audio.Ref{}, 0, 0, err
	}
	e, err := o.setup()
	if err != nil {
		return nil, audio.Ref{}, 0, 0, err
	}
	ref, err := o.program()
	if err != nil {
		return nil, audio.Ref{}, 0, 0, err
	}
	start, dur, err := o.window(e, ref)
	if err != nil {
		return nil, audio.Ref{}, 0, 0, err
	}
	return e, ref, start, dur, nil
}

func runLoudness(ctx context.Context, args []string, s streams) error {
	o := newOptions("loudness", s.err)
	series := o.fs.Bool("series", false, "emit the momentary loudness stream instead of the summary")
	e, ref, start, dur, err := measure(o, args)
	if err != nil {
		return err
	}
	if *series {
		blocks, err := e.eng.LoudnessOverTime(ctx, ref, start, dur)
		if err != nil {
			return err
		}
		return o.emit(s.out, blocks)
	}
	res, err := e.eng.MeasureLoudness(ctx, ref, start, dur)
	if err != nil {
		return err
	}
	return o.emit(s.out, res)
}

func runSpectrum(ctx context.Context, args []string, s streams) error {
	o := newOptions("spectrum", s.err)
	fftSize := o.fs.Int("fft", 0, "FFT size, a power of two in [16, 65536] (default from config)")
	weighting := o.fs.String("weighting", "", "weighting curve: A|C|K|none (default from config)")
	summary := o.fs.Bool("summary", false, "emit peak, bands and tonal balance instead of bins")
	e, ref, start, dur, err := measure(o, args)
	if err != nil {
		return err
	}
	if !o.isSet("fft") {
		*fftSize = e.cfg.Spectrum.FFTSize
	}
	if !o.isSet("weighting") {
		*weighting = e.cfg.Spectrum.Weighting
	}

	res, err := e.eng.AnalyzeSpectrum(ctx, ref, start, dur, *fftSize, *weighting)
	if err != nil {
		return err
	}
	if *summary {
		return o.emit(s.out, compliance.Summarize(res))
	}
	return o.emit(s.out, res)
}

func runStereo(ctx context.Context, args []string, s streams) error {
	o := newOptions("stereo", s.err)
	e, ref, start, dur, err := measure(o, args)
	if err != nil {
		return err
	}
	res, err := e.eng.AnalyzeStereo(ctx, ref, start, dur)
	if err != nil {
		return err
	}
	return o.emit(s.out, res)
}

func runDynamics(ctx context.Context, args []string, s streams) error {
	o := newOptions("dynamics", s.err)
	e, ref, start, dur, err := measure(o, args)
	if err != nil {
		return err
	}
	res, err := e.eng.AnalyzeDynamics(ctx, ref, start, dur)
	if err != nil {
		return err
	}
	return o.emit(s.out, res)
}

// targets registers -target and -ceiling; unset values come from config.
type targets struct {
	target  *float64
	ceiling *float64
}

func addTargets(o *options) targets {
	return targets{
		target:  o.fs.Float64("target", 0, "target integrated loudness in LUFS (default from config)"),
		ceiling: o.fs.Float64("ceiling", 0, "true-peak ceiling in dBTP (default from config)"),
	}
}

func (t targets) resolve(o *options, e *env) {
	if !o.isSet("target") {
		*t.target = e.cfg.Mastering.TargetLUFS
	}
	if !o.isSet("ceiling") {
		*t.ceiling = e.cfg.Mastering.PeakCeilingDBTP
	}
}

func runNormalize(ctx context.Context, args []string, s streams) error {
	o := newOptions("normalize", s.err)
	t := addTargets(o)
	apply := o.fs.String("apply", "", "write the normalized program to this WAV file")
	bits := o.fs.Int("bits", 24, "bit depth for -apply")
	ramp := o.fs.Float64("ramp", 0, "reach the gain over this many seconds from -start instead of at once")
	e, ref, start, dur, err := measure(o, args)
	if err != nil {
		return err
	}
	t.resolve(o, e)

	n, err := mastering.NewPlanner(e.eng).PlanNormalization(ctx, ref, start, dur, *t.target, *t.ceiling)
	if err != nil {
		return err
	}
	out := rampedNormalization{Normalization: n}
	curve := mastering.Curve{Points: []mastering.Point{{Time: 0, GainDB: n.GainDB}}}
	if *ramp != 0 {
		r, err := n.Ramp(start, *ramp)
		if err != nil {
			return err
		}
		out.Ramp, curve = &r, r
	}
	if *apply != "" {
		if err := writeWithCurve(e, ref, curve, *apply, *bits); err != nil {
			return err
		}
	}
	return o.emit(s.out, out)
}

// rampedNormalization is a normalization plus the fade-in curve asked for
// with -ramp.
type rampedNormalization struct {
	mastering.Normalization
	Ramp *mastering.Curve `json:"ramp,omitempty" msgpack:"ramp,omitempty"`
}

func runAutomation(ctx context.Context, args []string, s streams) error {
	o := newOptions("automation", s.err)
	t := addTargets(o)
	maxStep := o.fs.Float64("max-step", 0, "slew limit in dB per second (default from config)")
	apply := o.fs.String("apply", "", "write the automated program to this WAV file")
	bits := o.fs.Int("bits", 24, "bit depth for -apply")
	e, ref, start, dur, err := measure(o, args)
	if err != nil {
		return err
	}
	t.resolve(o, e)
	if !o.isSet("max-step") {
		*maxStep = e.cfg.Mastering.MaxStepDBPerSec
	}

	curve, err := mastering.NewPlanner(e.eng).PlanAutomation(ctx, ref, start, dur, *t.target, *maxStep)
	if err != nil {
		return err
	}
	if *apply != "" {
		if err := writeWithCurve(e, ref, curve, *apply, *bits); err != nil {
			return err
		}
	}
	return o.emit(s.out, curve)
}

// writeWithCurve renders the whole program of ref through curve.
func writeWithCurve(e *env, ref audio.Ref, curve mastering.Curve, path string, bits int) error {
	length, err := e.src.Length(ref)
	if err != nil {
		return err
	}
	b, err := e.src.Samples(context.Background(), ref, 0, length)
	if err != nil {
		return err
	}
	if err := wavfile.Write(path, curve.Apply(b, 0), bits); err != nil {
		return err
	}
	e.log.WithField("path", path).Info("wrote %s", path)
	return nil
}

func runMatch(ctx context.Context, args []string, s streams) error {
	o := newOptions("match", s.err)
	reference := o.fs.String("reference", "master", "program to match: track index or \"master\"")
	ceiling := o.fs.Float64("ceiling", 0, "true-peak ceiling in dBTP (default from config)")
	e, ref, start, dur, err := measure(o, args)
	if err != nil {
		return err
	}
	if !o.isSet("ceiling") {
		*ceiling = e.cfg.Mastering.PeakCeilingDBTP
	}
	target, err := parseRef(*reference, o.master != "")
	if err != nil {
		return err
	}
	if o.duration == 0 {
		// Both programs must cover the window.
		other, err := e.src.Length(target)
		if err != nil {
			return err
		}
		dur = math.Min(dur, other-start)
	}

	n, err := mastering.NewPlanner(e.eng).PlanMatch(ctx, ref, target, start, dur, *ceiling)
	if err != nil {
		return err
	}
	return o.emit(s.out, n)
}

// registry builds the preset registry, adding presets from a file.
func registry(path string) (*compliance.Registry, error) {
	reg := compliance.NewRegistry()
	if path != "" {
		if err := reg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func splitNames(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runComply(ctx context.Context, args []string, s streams) error {
	o := newOptions("comply", s.err)
	presets := o.fs.String("preset", "", "comma-separated preset names (default: all)")
	presetFile := o.fs.String("presets", "", "extra presets file (.toml, .yaml, .yml)")
	strict := o.fs.Bool("strict", false, "exit non-zero when any preset fails")
	e, ref, start, dur, err := measure(o, args)
	if err != nil {
		return err
	}
	reg, err := registry(*presetFile)
	if err != nil {
		return err
	}

	rep, err := compliance.NewReporter(e.eng, reg).CheckAll(ctx, ref, start, dur, splitNames(*presets)...)
	if err != nil {
		return err
	}
	if err := o.emit(s.out, rep); err != nil {
		return err
	}
	if *strict && !rep.Passed() {
		return fmt.Errorf("%s fails compliance", ref)
	}
	return nil
}

func runReport(ctx context.Context, args []string, s streams) error {
	o := newOptions("report", s.err)
	e, ref, start, dur, err := measure(o, args)
	if err != nil {
		return err
	}
	rep, err := compliance.NewReporter(e.eng, nil).Comprehensive(ctx, ref, start, dur)
	if err != nil {
		return err
	}
	return o.emit(s.out, rep)
}

func runMaster(ctx context.Context, args []string, s streams) error {
	o := newOptions("master", s.err)
	presetFile := o.fs.String("presets", "", "extra presets file (.toml, .yaml, .yml)")
	if err := o.parse(args); err != nil {
		return err
	}
	if o.master == "" {
		return fmt.Errorf("%w: master needs -master", errUsage)
	}
	e, err := o.setup()
	if err != nil {
		return err
	}
	start, dur, err := o.window(e, audio.MasterRef())
	if err != nil {
		return err
	}
	reg, err := registry(*presetFile)
	if err != nil {
		return err
	}

	rep, err := compliance.NewReporter(e.eng, reg).MasterChain(ctx, start, dur)
	if err != nil {
		return err
	}
	return o.emit(s.out, rep)
}

func runTone(_ context.Context, args []string, s streams) error {
	fs := newOptions("tone", s.err).fs
	wave := fs.String("wave", "sine", "sine|square|saw|triangle|noise|pink")
	freq := fs.Float64("freq", 1000, "frequency in Hz")
	level := fs.Float64("level", 0, "peak level in dBFS")
	seconds := fs.Float64("seconds", 10, "length in seconds")
	rate := fs.Float64("rate", 48000, "sample rate in Hz")
	channels := fs.Int("channels", 1, "1 or 2")
	invert := fs.Bool("invert", false, "invert the second channel")
	seed := fs.Int64("seed", 1, "noise seed")
	bits := fs.Int("bits", 24, "16, 24 or 32")
	out := fs.String("out", "tone.wav", "output WAV file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	w, err := oscillator.ParseWaveform(*wave)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	b, err := oscillator.Render(oscillator.Spec{
		Waveform:   w,
		Frequency:  *freq,
		Amplitude:  gain.DbToLinear(*level),
		Duration:   *seconds,
		SampleRate: *rate,
		Channels:   *channels,
		Invert:     *invert,
		Seed:       *seed,
	})
	if err != nil {
		return err
	}
	if err := wavfile.Write(*out, b, *bits); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "wrote %s (%s, %.0f Hz, %.1f s)\n", *out, w, *freq, *seconds)
	return nil
}
