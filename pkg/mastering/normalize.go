// Package mastering derives corrective gain from loudness measurements:
// static normalization offsets, loudness matching between programs and
// slew-limited gain automation curves.
package mastering

import (
	"fmt"
	"math"

	"github.com/justyntemme/mastermeter/pkg/audio"
	"github.com/justyntemme/mastermeter/pkg/dsp/analysis"
)

// Normalization is a static gain offset toward a loudness target.
type Normalization struct {
	GainDB         float64 `json:"gain_db" msgpack:"gain_db"`
	TargetLUFS     float64 `json:"target_lufs" msgpack:"target_lufs"`
	MeasuredLUFS   float64 `json:"measured_lufs" msgpack:"measured_lufs"`
	TruePeakDBTP   float64 `json:"true_peak_dbtp" msgpack:"true_peak_dbtp"`
	CeilingDBTP    float64 `json:"ceiling_dbtp" msgpack:"ceiling_dbtp"`
	CeilingLimited bool    `json:"ceiling_limited" msgpack:"ceiling_limited"`
}

// ResultLUFS is the integrated loudness expected after applying the gain.
func (n Normalization) ResultLUFS() float64 {
	return n.MeasuredLUFS + n.GainDB
}

// ResultPeakDBTP is the true peak expected after applying the gain.
func (n Normalization) ResultPeakDBTP() float64 {
	return n.TruePeakDBTP + n.GainDB
}

// Ramp returns a two-point curve moving from unity to the offset over
// smoothing seconds, starting at start.
func (n Normalization) Ramp(start, smoothing float64) (Curve, error) {
	if !(smoothing > 0) || start < 0 {
		return Curve{}, fmt.Errorf("%w: ramp needs start >= 0 and smoothing > 0, got %v and %v",
			audio.ErrInvalidParameter, start, smoothing)
	}
	return Curve{Points: []Point{
		{Time: start, GainDB: 0},
		{Time: start + smoothing, GainDB: n.GainDB},
	}}, nil
}

// NormalizationOffset computes the offset with DefaultLimits.
func NormalizationOffset(measured analysis.LoudnessResult, targetLU, ceilingDBTP float64) (Normalization, error) {
	return DefaultLimits().NormalizationOffset(measured, targetLU, ceilingDBTP)
}

// MatchOffset computes the match offset with DefaultLimits.
func MatchOffset(source, reference analysis.LoudnessResult, ceilingDBTP float64) (Normalization, error) {
	return DefaultLimits().MatchOffset(source, reference, ceilingDBTP)
}

// NormalizationOffset computes the gain that moves measured to targetLU
// without pushing its true peak above ceilingDBTP. When the ceiling wins,
// truePeak + gain equals the ceiling and CeilingLimited is set. A result
// flagged Silent or reading at or below the silence floor is rejected.
func (lim Limits) NormalizationOffset(measured analysis.LoudnessResult, targetLU, ceilingDBTP float64) (Normalization, error) {
	if !finite(targetLU) {
		return Normalization{}, fmt.Errorf("%w: target_lu must be finite, got %v", audio.ErrInvalidParameter, targetLU)
	}
	if !finite(ceilingDBTP) {
		return Normalization{}, fmt.Errorf("%w: peak_ceiling_dbtp must be finite, got %v", audio.ErrInvalidParameter, ceilingDBTP)
	}
	if lim.silent(measured) {
		return Normalization{}, fmt.Errorf("%w: cannot normalize silence (integrated %.1f LUFS)",
			audio.ErrInsufficientData, measured.IntegratedLUFS)
	}
	if !finite(measured.TruePeakDBTP) {
		return Normalization{}, fmt.Errorf("%w: true peak must be finite, got %v", audio.ErrInvalidParameter, measured.TruePeakDBTP)
	}

	n := Normalization{
		GainDB:       targetLU - measured.IntegratedLUFS,
		TargetLUFS:   targetLU,
		MeasuredLUFS: measured.IntegratedLUFS,
		TruePeakDBTP: measured.TruePeakDBTP,
		CeilingDBTP:  ceilingDBTP,
	}
	if limit := ceilingDBTP - measured.TruePeakDBTP; n.GainDB > limit {
		n.GainDB = limit
		n.CeilingLimited = true
	}
	return n, nil
}

// MatchOffset computes the gain that brings source to the integrated
// loudness of reference, subject to the same ceiling rule.
func (lim Limits) MatchOffset(source, reference analysis.LoudnessResult, ceilingDBTP float64) (Normalization, error) {
	if lim.silent(reference) {
		return Normalization{}, fmt.Errorf("%w: reference program is silent", audio.ErrInsufficientData)
	}
	return lim.NormalizationOffset(source, reference.IntegratedLUFS, ceilingDBTP)
}

func (lim Limits) silent(r analysis.LoudnessResult) bool {
	return r.Silent || !finite(r.IntegratedLUFS) || r.IntegratedLUFS <= lim.SilenceFloor
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
