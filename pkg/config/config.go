// Package config holds the tunable constants of the measurement engine.
//
// The loudness math approximates broadcast-loudness recommendations; every
// calibration constant and gate lives here so conformance can be tuned
// against reference meters without touching analyzer code.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Loudness  Loudness  `toml:"loudness" yaml:"loudness"`
	TruePeak  TruePeak  `toml:"truepeak" yaml:"truepeak"`
	Spectrum  Spectrum  `toml:"spectrum" yaml:"spectrum"`
	Mastering Mastering `toml:"mastering" yaml:"mastering"`
	Source    Source    `toml:"source" yaml:"source"`
	Log       Log       `toml:"log" yaml:"log"`
}

// Loudness configures the loudness integrator.
type Loudness struct {
	// Calibration is added to 10*log10(P). -0.691 follows BS.1770.
	Calibration float64 `toml:"calibration" yaml:"calibration"`
	// AbsoluteGate discards blocks below this level (LU).
	AbsoluteGate float64 `toml:"absolute_gate" yaml:"absolute_gate"`
	// RelativeGate discards blocks this many dB below the un-gated mean.
	RelativeGate float64 `toml:"relative_gate" yaml:"relative_gate"`
	Gating       bool    `toml:"gating" yaml:"gating"`

	MomentaryBlock   float64 `toml:"momentary_block" yaml:"momentary_block"`
	MomentaryOverlap float64 `toml:"momentary_overlap" yaml:"momentary_overlap"`
	ShortTermBlock   float64 `toml:"short_term_block" yaml:"short_term_block"`
	ShortTermOverlap float64 `toml:"short_term_overlap" yaml:"short_term_overlap"`

	// SilenceFloor is the sentinel reported for silence (-inf) in loudness,
	// true-peak and level readings.
	SilenceFloor float64 `toml:"silence_floor" yaml:"silence_floor"`
	Weighting    string  `toml:"weighting" yaml:"weighting"`

	LRARelativeGate   float64 `toml:"lra_relative_gate" yaml:"lra_relative_gate"`
	LRALowPercentile  float64 `toml:"lra_low_percentile" yaml:"lra_low_percentile"`
	LRAHighPercentile float64 `toml:"lra_high_percentile" yaml:"lra_high_percentile"`
}

// TruePeak configures inter-sample peak detection.
type TruePeak struct {
	// Oversample is the polyphase upsampling factor. 1 or less falls back
	// to linear interpolation between consecutive samples.
	Oversample   int `toml:"oversample" yaml:"oversample"`
	TapsPerPhase int `toml:"taps_per_phase" yaml:"taps_per_phase"`
}

// Spectrum configures the spectrum analyzer.
type Spectrum struct {
	FloorDB   float64 `toml:"floor_db" yaml:"floor_db"`
	Window    string  `toml:"window" yaml:"window"`
	FFTSize   int     `toml:"fft_size" yaml:"fft_size"`
	Weighting string  `toml:"weighting" yaml:"weighting"`
}

// Mastering configures the planner.
type Mastering struct {
	MinGainDB         float64 `toml:"min_gain_db" yaml:"min_gain_db"`
	MaxGainDB         float64 `toml:"max_gain_db" yaml:"max_gain_db"`
	TargetLUFS        float64 `toml:"target_lufs" yaml:"target_lufs"`
	PeakCeilingDBTP   float64 `toml:"peak_ceiling_dbtp" yaml:"peak_ceiling_dbtp"`
	MaxStepDBPerSec   float64 `toml:"max_step_db_per_sec" yaml:"max_step_db_per_sec"`
	SimplifyTolerance float64 `toml:"simplify_tolerance_db" yaml:"simplify_tolerance_db"`
}

// Source configures how windows are read from the sample source.
type Source struct {
	// ChunkSeconds is the read granularity; cancellation is checked
	// between chunks.
	ChunkSeconds float64 `toml:"chunk_seconds" yaml:"chunk_seconds"`
}

// Log configures the logger.
type Log struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
	// File appends log lines to a file instead of stderr.
	File string `toml:"file" yaml:"file"`
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		Loudness: Loudness{
			Calibration:       -0.691,
			AbsoluteGate:      -70.0,
			RelativeGate:      10.0,
			Gating:            true,
			MomentaryBlock:    0.4,
			MomentaryOverlap:  0.75,
			ShortTermBlock:    3.0,
			ShortTermOverlap:  2.0 / 3.0,
			SilenceFloor:      -100.0,
			Weighting:         "K",
			LRARelativeGate:   20.0,
			LRALowPercentile:  0.10,
			LRAHighPercentile: 0.95,
		},
		TruePeak: TruePeak{
			Oversample:   4,
			TapsPerPhase: 12,
		},
		Spectrum: Spectrum{
			FloorDB:   -120.0,
			Window:    "hann",
			FFTSize:   8192,
			Weighting: "none",
		},
		Mastering: Mastering{
			MinGainDB:         -24.0,
			MaxGainDB:         24.0,
			TargetLUFS:        -14.0,
			PeakCeilingDBTP:   -1.0,
			MaxStepDBPerSec:   6.0,
			SimplifyTolerance: 0.05,
		},
		Source: Source{
			ChunkSeconds: 1.0,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a TOML or YAML file over the defaults. The format is chosen by
// extension: .toml, .yaml or .yml.
func Load(path string) (Config, error) {
	cfg := Default()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("config %s: unsupported extension (want .toml, .yaml or .yml)", path)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	l := c.Loudness
	switch {
	case !finite(l.Calibration):
		return fmt.Errorf("loudness.calibration must be finite")
	case !finite(l.AbsoluteGate):
		return fmt.Errorf("loudness.absolute_gate must be finite")
	case l.RelativeGate < 0 || !finite(l.RelativeGate):
		return fmt.Errorf("loudness.relative_gate must be >= 0, got %v", l.RelativeGate)
	case l.MomentaryBlock <= 0:
		return fmt.Errorf("loudness.momentary_block must be > 0, got %v", l.MomentaryBlock)
	case l.MomentaryOverlap < 0 || l.MomentaryOverlap >= 1:
		return fmt.Errorf("loudness.momentary_overlap must be in [0, 1), got %v", l.MomentaryOverlap)
	case l.ShortTermBlock < l.MomentaryBlock:
		return fmt.Errorf("loudness.short_term_block must be >= momentary_block, got %v", l.ShortTermBlock)
	case l.ShortTermOverlap < 0 || l.ShortTermOverlap >= 1:
		return fmt.Errorf("loudness.short_term_overlap must be in [0, 1), got %v", l.ShortTermOverlap)
	case l.SilenceFloor >= 0 || !finite(l.SilenceFloor):
		return fmt.Errorf("loudness.silence_floor must be a finite negative level, got %v", l.SilenceFloor)
	case l.LRALowPercentile < 0 || l.LRAHighPercentile > 1 || l.LRALowPercentile >= l.LRAHighPercentile:
		return fmt.Errorf("loudness.lra percentiles must satisfy 0 <= low < high <= 1")
	}

	if c.TruePeak.TapsPerPhase < 2 && c.TruePeak.Oversample > 1 {
		return fmt.Errorf("truepeak.taps_per_phase must be >= 2, got %d", c.TruePeak.TapsPerPhase)
	}

	s := c.Spectrum
	if s.FloorDB >= 0 || !finite(s.FloorDB) {
		return fmt.Errorf("spectrum.floor_db must be a finite negative level, got %v", s.FloorDB)
	}
	if s.Window == "" {
		return fmt.Errorf("spectrum.window must be set")
	}

	m := c.Mastering
	if m.MinGainDB >= m.MaxGainDB {
		return fmt.Errorf("mastering.min_gain_db (%v) must be below max_gain_db (%v)", m.MinGainDB, m.MaxGainDB)
	}
	if m.MaxStepDBPerSec <= 0 {
		return fmt.Errorf("mastering.max_step_db_per_sec must be > 0, got %v", m.MaxStepDBPerSec)
	}
	if m.SimplifyTolerance < 0 {
		return fmt.Errorf("mastering.simplify_tolerance_db must be >= 0, got %v", m.SimplifyTolerance)
	}

	if c.Source.ChunkSeconds <= 0 {
		return fmt.Errorf("source.chunk_seconds must be > 0, got %v", c.Source.ChunkSeconds)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error", "off":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error, off", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format %q is not one of text, json", c.Log.Format)
	}

	return nil
}
