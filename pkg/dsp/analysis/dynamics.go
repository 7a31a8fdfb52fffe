package analysis

import (
	"fmt"
	"math"

	"github.com/justyntemme/mastermeter/pkg/audio"
	"github.com/justyntemme/mastermeter/pkg/dsp/gain"
)

// ClipLevel is the absolute sample value counted as clipped.
const ClipLevel = 0.999

// DynamicsResult is an unweighted peak/RMS measurement. DCOffset is the
// linear mean of all samples. NaN and infinite samples are counted in
// NonFinite and excluded from every other field.
type DynamicsResult struct {
	PeakDB         float64 `json:"peak_db" msgpack:"peak_db"`
	RMSDB          float64 `json:"rms_db" msgpack:"rms_db"`
	CrestFactorDB  float64 `json:"crest_factor_db" msgpack:"crest_factor_db"`
	Quality        string  `json:"quality" msgpack:"quality"`
	DCOffset       float64 `json:"dc_offset" msgpack:"dc_offset"`
	ClippedSamples int     `json:"clipped_samples" msgpack:"clipped_samples"`
	NonFinite      int     `json:"non_finite" msgpack:"non_finite"`
}

// ClassifyDynamics names a crest factor.
func ClassifyDynamics(crestDB float64) string {
	switch {
	case crestDB < 6:
		return "highly_compressed"
	case crestDB < 12:
		return "compressed"
	case crestDB < 18:
		return "moderate_dynamics"
	case crestDB < 24:
		return "good_dynamics"
	default:
		return "very_dynamic"
	}
}

// DynamicsAnalyzer tracks the absolute peak and mean square of every sample
// on every channel.
type DynamicsAnalyzer struct {
	floor     float64
	peak      float64
	sum       float64
	squares   float64
	n         int
	clipped   int
	nonFinite int
}

// NewDynamicsAnalyzer reports levels below floorDB as floorDB.
func NewDynamicsAnalyzer(floorDB float64) *DynamicsAnalyzer {
	return &DynamicsAnalyzer{floor: floorDB}
}

// Process consumes one block.
func (da *DynamicsAnalyzer) Process(b *audio.Block) {
	for _, v := range b.Samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			da.nonFinite++
			continue
		}
		a := math.Abs(v)
		if a > da.peak {
			da.peak = a
		}
		if a >= ClipLevel {
			da.clipped++
		}
		da.sum += v
		da.squares += v * v
		da.n++
	}
}

// Result finalizes the measurement. Peak never reads below RMS, so the
// crest factor is never negative.
func (da *DynamicsAnalyzer) Result() (DynamicsResult, error) {
	if da.n == 0 {
		return DynamicsResult{}, fmt.Errorf("%w: no finite samples to analyze (%d non-finite)",
			audio.ErrInsufficientData, da.nonFinite)
	}
	rms := math.Sqrt(da.squares / float64(da.n))
	res := DynamicsResult{
		PeakDB:         gain.LinearToDbFloor(da.peak, da.floor),
		RMSDB:          gain.LinearToDbFloor(rms, da.floor),
		DCOffset:       da.sum / float64(da.n),
		ClippedSamples: da.clipped,
		NonFinite:      da.nonFinite,
	}
	res.CrestFactorDB = math.Max(0, res.PeakDB-res.RMSDB)
	res.Quality = ClassifyDynamics(res.CrestFactorDB)
	return res, nil
}

// AnalyzeDynamics runs a fresh analyzer over a single block.
func AnalyzeDynamics(b *audio.Block, floorDB float64) (DynamicsResult, error) {
	da := NewDynamicsAnalyzer(floorDB)
	da.Process(b)
	return da.Result()
}
