// Package compliance checks measured programs against delivery loudness
// presets and assembles track and master-chain reports.
package compliance

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/justyntemme/mastermeter/pkg/audio"
	"github.com/justyntemme/mastermeter/pkg/dsp/analysis"
)

// Preset categories.
const (
	Broadcast = "broadcast"
	Streaming = "streaming"
)

// Preset is a delivery target.
type Preset struct {
	Name            string  `json:"name" msgpack:"name" toml:"name" yaml:"name"`
	Category        string  `json:"category,omitempty" msgpack:"category,omitempty" toml:"category" yaml:"category"`
	TargetLUFS      float64 `json:"target_lufs" msgpack:"target_lufs" toml:"target_lufs" yaml:"target_lufs"`
	PeakCeilingDBTP float64 `json:"peak_ceiling_dbtp" msgpack:"peak_ceiling_dbtp" toml:"peak_ceiling_dbtp" yaml:"peak_ceiling_dbtp"`
	ToleranceLU     float64 `json:"tolerance_lu" msgpack:"tolerance_lu" toml:"tolerance_lu" yaml:"tolerance_lu"`
	// MaxLRA caps the loudness range; zero leaves it unchecked.
	MaxLRA float64 `json:"max_lra,omitempty" msgpack:"max_lra,omitempty" toml:"max_lra" yaml:"max_lra"`
}

// Validate checks that the preset can be evaluated.
func (p Preset) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: preset name is empty", audio.ErrInvalidParameter)
	}
	for _, v := range []struct {
		name  string
		value float64
	}{
		{"target_lufs", p.TargetLUFS},
		{"peak_ceiling_dbtp", p.PeakCeilingDBTP},
		{"tolerance_lu", p.ToleranceLU},
		{"max_lra", p.MaxLRA},
	} {
		if math.IsNaN(v.value) || math.IsInf(v.value, 0) {
			return fmt.Errorf("%w: preset %q %s must be finite", audio.ErrInvalidParameter, p.Name, v.name)
		}
	}
	if p.ToleranceLU < 0 || p.MaxLRA < 0 {
		return fmt.Errorf("%w: preset %q tolerance_lu and max_lra must be >= 0", audio.ErrInvalidParameter, p.Name)
	}
	return nil
}

// Verdict is the outcome of one preset against one measurement. Pass is
// the conjunction of the individual checks. RangeOK goes beyond the
// loudness and peak checks with a loudness range cap; it only fails for
// presets that set MaxLRA, which among the built-ins is ebu_r128 (20 LU).
type Verdict struct {
	Preset   string `json:"preset" msgpack:"preset"`
	Category string `json:"category,omitempty" msgpack:"category,omitempty"`
	Pass     bool   `json:"pass" msgpack:"pass"`
	// DeltaLU is measured minus target; positive is too loud.
	DeltaLU float64 `json:"delta_lu" msgpack:"delta_lu"`
	// PeakMarginDB is ceiling minus true peak; negative is over.
	PeakMarginDB float64 `json:"peak_margin_db" msgpack:"peak_margin_db"`
	LoudnessOK   bool    `json:"loudness_ok" msgpack:"loudness_ok"`
	PeakOK       bool    `json:"peak_ok" msgpack:"peak_ok"`
	RangeOK      bool    `json:"range_ok" msgpack:"range_ok"`
}

// Evaluate judges a loudness measurement. The integrated loudness must be
// within ToleranceLU of the target and the true peak at or under the
// ceiling. A preset with MaxLRA > 0 also fails when LoudnessRange exceeds
// it.
func (p Preset) Evaluate(l analysis.LoudnessResult) Verdict {
	v := Verdict{
		Preset:       p.Name,
		Category:     p.Category,
		DeltaLU:      l.IntegratedLUFS - p.TargetLUFS,
		PeakMarginDB: p.PeakCeilingDBTP - l.TruePeakDBTP,
		RangeOK:      true,
	}
	v.LoudnessOK = math.Abs(v.DeltaLU) <= p.ToleranceLU
	v.PeakOK = l.TruePeakDBTP <= p.PeakCeilingDBTP
	if p.MaxLRA > 0 {
		v.RangeOK = l.LoudnessRange <= p.MaxLRA
	}
	v.Pass = v.LoudnessOK && v.PeakOK && v.RangeOK
	return v
}

// Builtin returns the presets every registry starts with.
func Builtin() []Preset {
	return []Preset{
		{Name: "streaming", Category: Streaming, TargetLUFS: -14, PeakCeilingDBTP: -1, ToleranceLU: 1},
		{Name: "broadcast", Category: Broadcast, TargetLUFS: -23, PeakCeilingDBTP: -1, ToleranceLU: 1},
		{Name: "ebu_r128", Category: Broadcast, TargetLUFS: -23, PeakCeilingDBTP: -1, ToleranceLU: 1, MaxLRA: 20},
		{Name: "atsc_a85", Category: Broadcast, TargetLUFS: -24, PeakCeilingDBTP: -2, ToleranceLU: 1},
		{Name: "spotify", Category: Streaming, TargetLUFS: -14, PeakCeilingDBTP: -1, ToleranceLU: 1},
		{Name: "apple_music", Category: Streaming, TargetLUFS: -16, PeakCeilingDBTP: -1, ToleranceLU: 1},
		{Name: "youtube", Category: Streaming, TargetLUFS: -14, PeakCeilingDBTP: -1, ToleranceLU: 1},
	}
}

// Registry holds presets by name. Names are case-insensitive.
type Registry struct {
	mu      sync.RWMutex
	presets map[string]Preset
}

// NewRegistry returns a registry seeded with Builtin.
func NewRegistry() *Registry {
	r := &Registry{presets: make(map[string]Preset)}
	for _, p := range Builtin() {
		r.presets[key(p.Name)] = p
	}
	return r
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds or replaces a preset.
func (r *Registry) Register(p Preset) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presets[key(p.Name)] = p
	return nil
}

// Lookup finds a preset by name.
func (r *Registry) Lookup(name string) (Preset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.presets[key(name)]
	if !ok {
		return Preset{}, fmt.Errorf("%w %q (known: %s)", audio.ErrUnknownPreset, name, strings.Join(r.names(), ", "))
	}
	return p, nil
}

// Names returns the registered preset names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names()
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.presets))
	for _, p := range r.presets {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// Presets returns every registered preset ordered by name.
func (r *Registry) Presets() []Preset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Preset, 0, len(r.presets))
	for _, name := range r.names() {
		out = append(out, r.presets[key(name)])
	}
	return out
}

type presetFile struct {
	Presets []Preset `toml:"presets" yaml:"presets"`
}

// LoadPresets reads a preset list from a YAML (.yaml, .yml) or TOML (.toml)
// file with a top-level "presets" list.
func LoadPresets(path string) ([]Preset, error) {
	var f presetFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &f); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w: preset file %s must be .toml, .yaml or .yml", audio.ErrInvalidParameter, path)
	}

	for _, p := range f.Presets {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return f.Presets, nil
}

// LoadFile registers every preset in a preset file.
func (r *Registry) LoadFile(path string) error {
	presets, err := LoadPresets(path)
	if err != nil {
		return err
	}
	for _, p := range presets {
		if err := r.Register(p); err != nil {
			return err
		}
	}
	return nil
}
