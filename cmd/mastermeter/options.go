package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/justyntemme/mastermeter/pkg/audio"
	"github.com/justyntemme/mastermeter/pkg/audio/wavfile"
	"github.com/justyntemme/mastermeter/pkg/config"
	"github.com/justyntemme/mastermeter/pkg/engine"
	"github.com/justyntemme/mastermeter/pkg/logging"
)

var errUsage = errors.New("usage")

// fileList collects a repeatable flag.
type fileList []string

func (f *fileList) String() string { return strings.Join(*f, ",") }

func (f *fileList) Set(v string) error {
	*f = append(*f, v)
	return nil
}

// options holds the flags shared by every measuring command.
type options struct {
	fs     *flag.FlagSet
	stderr io.Writer

	configPath string
	format     string
	output     string
	logLevel   string
	logFile    string
	tracks     fileList
	master     string
	ref        string
	start      float64
	duration   float64
	profile    bool

	prof *engine.Profiler
}

func newOptions(name string, stderr io.Writer) *options {
	o := &options{fs: flag.NewFlagSet(name, flag.ContinueOnError), stderr: stderr}
	o.fs.SetOutput(stderr)
	o.fs.StringVar(&o.configPath, "config", "", "config file (.toml, .yaml, .yml)")
	o.fs.StringVar(&o.format, "format", "json", "output format: json|msgpack")
	o.fs.StringVar(&o.output, "o", "", "write output to file instead of stdout")
	o.fs.StringVar(&o.logLevel, "log-level", "", "debug|info|warn|error|off (default from config)")
	o.fs.StringVar(&o.logFile, "log-file", "", "append logs to this file instead of stderr")
	o.fs.Var(&o.tracks, "track", "WAV file for the next track index (repeatable)")
	o.fs.StringVar(&o.master, "master", "", "WAV file for the master bus")
	o.fs.StringVar(&o.ref, "ref", "", "program to analyze: track index or \"master\" (default: master if given, else 0)")
	o.fs.Float64Var(&o.start, "start", 0, "window start in seconds")
	o.fs.Float64Var(&o.duration, "duration", 0, "window length in seconds (0 = to the end of the program)")
	o.fs.BoolVar(&o.profile, "profile", false, "print operation timings to stderr after the output")
	return o
}

func (o *options) parse(args []string) error {
	if err := o.fs.Parse(args); err != nil {
		return err
	}
	if o.fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected arguments %v", errUsage, o.fs.Args())
	}
	if o.format != "json" && o.format != "msgpack" {
		return fmt.Errorf("%w: -format must be json or msgpack, got %q", errUsage, o.format)
	}
	return nil
}

// isSet reports whether a flag was given on the command line.
func (o *options) isSet(name string) bool {
	set := false
	o.fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func (o *options) loadConfig() (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return cfg, err
		}
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFile != "" {
		cfg.Log.File = o.logFile
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	var log *logging.Logger
	if cfg.Log.File != "" {
		log, err = logging.NewFileLogger(cfg.Log.File, "mastermeter", cfg.Log.Format)
	} else {
		log, err = logging.NewFormat(os.Stderr, "mastermeter", cfg.Log.Format)
	}
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)
	log.WithFields(logging.Fields{"level": level.String(), "file": cfg.Log.File}).Debug("logger ready")
	return log, nil
}

// env is everything a measuring command needs.
type env struct {
	cfg config.Config
	log *logging.Logger
	src *wavfile.Source
	eng *engine.Engine
}

func (o *options) setup() (*env, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	if len(o.tracks) == 0 && o.master == "" {
		return nil, fmt.Errorf("%w: give at least one -track or -master file", errUsage)
	}

	src, err := wavfile.Open(o.tracks, o.master)
	if err != nil {
		return nil, err
	}
	opts := []engine.Option{engine.WithConfig(cfg), engine.WithLogger(log)}
	if o.profile {
		o.prof = engine.NewProfiler(1000)
		opts = append(opts, engine.WithProfiler(o.prof))
	}
	eng, err := engine.New(src, opts...)
	if err != nil {
		return nil, err
	}
	log.WithFields(logging.Fields{"tracks": len(o.tracks), "master": o.master != ""}).Debug("source opened")
	return &env{cfg: cfg, log: log, src: src, eng: eng}, nil
}

// program resolves -ref.
func (o *options) program() (audio.Ref, error) {
	return parseRef(o.ref, o.master != "")
}

func parseRef(s string, haveMaster bool) (audio.Ref, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		if haveMaster {
			return audio.MasterRef(), nil
		}
		return audio.TrackRef(0), nil
	case "master":
		return audio.MasterRef(), nil
	}
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return audio.Ref{}, fmt.Errorf("%w: ref must be a track index or \"master\", got %q", errUsage, s)
	}
	return audio.TrackRef(i), nil
}

// window returns the start and duration for ref, extending a zero duration
// to the end of the program.
func (o *options) window(e *env, ref audio.Ref) (float64, float64, error) {
	if o.duration != 0 {
		return o.start, o.duration, nil
	}
	length, err := e.src.Length(ref)
	if err != nil {
		return 0, 0, err
	}
	return o.start, length - o.start, nil
}
