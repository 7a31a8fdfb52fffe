package analysis

import (
	"fmt"
	"math"

	"github.com/justyntemme/mastermeter/pkg/audio"
	"github.com/justyntemme/mastermeter/pkg/dsp/gain"
)

// PhaseStatus represents the qualitative phase relationship
type PhaseStatus int

const (
	PhaseInPhase PhaseStatus = iota
	PhaseMostlyInPhase
	PhasePartiallyCorrelated
	PhaseMostlyOutOfPhase
	PhaseOutOfPhase
)

// String returns a string representation of the phase status
func (ps PhaseStatus) String() string {
	switch ps {
	case PhaseInPhase:
		return "In Phase"
	case PhaseMostlyInPhase:
		return "Mostly In Phase"
	case PhasePartiallyCorrelated:
		return "Partially Correlated"
	case PhaseMostlyOutOfPhase:
		return "Mostly Out of Phase"
	case PhaseOutOfPhase:
		return "Out of Phase"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the status by name.
func (ps PhaseStatus) MarshalText() ([]byte, error) {
	return []byte(ps.String()), nil
}

// UnmarshalText decodes a status name written by MarshalText.
func (ps *PhaseStatus) UnmarshalText(text []byte) error {
	for s := PhaseInPhase; s <= PhaseOutOfPhase; s++ {
		if s.String() == string(text) {
			*ps = s
			return nil
		}
	}
	return fmt.Errorf("%w: unknown phase status %q", audio.ErrInvalidParameter, text)
}

// ClassifyPhase maps a correlation coefficient to a PhaseStatus.
func ClassifyPhase(corr float64) PhaseStatus {
	switch {
	case corr > 0.9:
		return PhaseInPhase
	case corr > 0.5:
		return PhaseMostlyInPhase
	case corr > -0.5:
		return PhasePartiallyCorrelated
	case corr > -0.9:
		return PhaseMostlyOutOfPhase
	default:
		return PhaseOutOfPhase
	}
}

// StereoResult describes the stereo field over a window.
type StereoResult struct {
	Correlation float64 `json:"correlation" msgpack:"correlation"`
	MidEnergy   float64 `json:"mid_energy" msgpack:"mid_energy"`
	SideEnergy  float64 `json:"side_energy" msgpack:"side_energy"`
	// WidthRatio is side/(mid+side); 0 for silence.
	WidthRatio float64 `json:"width_ratio" msgpack:"width_ratio"`
	// Balance runs from -1 (left) to 1 (right).
	Balance           float64     `json:"balance" msgpack:"balance"`
	ImbalanceDB       float64     `json:"imbalance_db" msgpack:"imbalance_db"`
	MidLevelDB        float64     `json:"mid_level_db" msgpack:"mid_level_db"`
	SideLevelDB       float64     `json:"side_level_db" msgpack:"side_level_db"`
	PhaseStatus       PhaseStatus `json:"phase_status" msgpack:"phase_status"`
	MonoCompatibility float64     `json:"mono_compatibility" msgpack:"mono_compatibility"`
}

// StereoAnalyzer keeps running sums for correlation and mid/side energy.
type StereoAnalyzer struct {
	floor float64

	n       float64
	sumL    float64
	sumR    float64
	sumLL   float64
	sumRR   float64
	sumLR   float64
	sumMid  float64
	sumSide float64
}

// NewStereoAnalyzer requires a two channel format.
func NewStereoAnalyzer(format audio.Format, floorDB float64) (*StereoAnalyzer, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if format.Channels != audio.Stereo {
		return nil, fmt.Errorf("%w: stereo analysis needs 2 channels, got %d",
			audio.ErrUnsupportedChannelLayout, format.Channels)
	}
	return &StereoAnalyzer{floor: floorDB}, nil
}

// Process consumes one interleaved stereo block.
func (sa *StereoAnalyzer) Process(b *audio.Block) error {
	if b.Channels != audio.Stereo {
		return fmt.Errorf("%w: stereo analysis needs 2 channels, got %d",
			audio.ErrUnsupportedChannelLayout, b.Channels)
	}
	samples, _ := finiteSamples(b.Samples)
	for i := 0; i+1 < len(samples); i += 2 {
		l, r := samples[i], samples[i+1]
		sa.n++
		sa.sumL += l
		sa.sumR += r
		sa.sumLL += l * l
		sa.sumRR += r * r
		sa.sumLR += l * r

		mid := (l + r) * 0.5
		side := (l - r) * 0.5
		sa.sumMid += mid * mid
		sa.sumSide += side * side
	}
	return nil
}

const varianceEpsilon = 1e-20

func (sa *StereoAnalyzer) correlation() float64 {
	n := sa.n
	varL := sa.sumLL/n - (sa.sumL/n)*(sa.sumL/n)
	varR := sa.sumRR/n - (sa.sumR/n)*(sa.sumR/n)
	silentL := sa.sumLL/n < varianceEpsilon
	silentR := sa.sumRR/n < varianceEpsilon

	var corr float64
	switch {
	case silentL && silentR:
		corr = 1
	case silentL || silentR:
		corr = 0
	case varL > varianceEpsilon && varR > varianceEpsilon:
		cov := sa.sumLR/n - (sa.sumL/n)*(sa.sumR/n)
		corr = cov / math.Sqrt(varL*varR)
	default:
		// a constant (DC) channel has no variance; fall back to the
		// uncentered coefficient
		corr = sa.sumLR / math.Sqrt(sa.sumLL*sa.sumRR)
	}
	return math.Max(-1, math.Min(1, corr))
}

// Result finalizes the analysis.
func (sa *StereoAnalyzer) Result() (StereoResult, error) {
	if sa.n == 0 {
		return StereoResult{}, fmt.Errorf("%w: no frames to analyze", audio.ErrInsufficientData)
	}

	res := StereoResult{
		Correlation: sa.correlation(),
		MidEnergy:   sa.sumMid / sa.n,
		SideEnergy:  sa.sumSide / sa.n,
	}
	if total := res.MidEnergy + res.SideEnergy; total > 0 {
		res.WidthRatio = res.SideEnergy / total
	}

	powerL, powerR := sa.sumLL/sa.n, sa.sumRR/sa.n
	if total := powerL + powerR; total > 0 {
		res.Balance = (powerR - powerL) / total
	}
	res.ImbalanceDB = gain.PowerToDbFloor(powerR, sa.floor) - gain.PowerToDbFloor(powerL, sa.floor)
	res.MidLevelDB = gain.PowerToDbFloor(res.MidEnergy, sa.floor)
	res.SideLevelDB = gain.PowerToDbFloor(res.SideEnergy, sa.floor)
	res.PhaseStatus = ClassifyPhase(res.Correlation)
	res.MonoCompatibility = (res.Correlation + 1.0) / 2.0
	return res, nil
}

// AnalyzeStereo runs a fresh analyzer over a single block.
func AnalyzeStereo(b *audio.Block, floorDB float64) (StereoResult, error) {
	sa, err := NewStereoAnalyzer(audio.Format{SampleRate: b.SampleRate, Channels: b.Channels}, floorDB)
	if err != nil {
		return StereoResult{}, err
	}
	if err := sa.Process(b); err != nil {
		return StereoResult{}, err
	}
	return sa.Result()
}
