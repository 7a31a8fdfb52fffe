package analysis

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/justyntemme/mastermeter/pkg/audio"
	"github.com/justyntemme/mastermeter/pkg/config"
	"github.com/justyntemme/mastermeter/pkg/dsp/gain"
	"github.com/justyntemme/mastermeter/pkg/dsp/weighting"
)

// LoudnessResult is the outcome of one loudness measurement.
type LoudnessResult struct {
	IntegratedLUFS   float64 `json:"integrated_lufs" msgpack:"integrated_lufs"`
	MomentaryMaxLUFS float64 `json:"momentary_max_lufs" msgpack:"momentary_max_lufs"`
	ShortTermMaxLUFS float64 `json:"short_term_max_lufs" msgpack:"short_term_max_lufs"`
	TruePeakDBTP     float64 `json:"true_peak_dbtp" msgpack:"true_peak_dbtp"`
	SamplePeakDBFS   float64 `json:"sample_peak_dbfs" msgpack:"sample_peak_dbfs"`
	LoudnessRange    float64 `json:"loudness_range_lu" msgpack:"loudness_range_lu"`
	GatingApplied    bool    `json:"gating_applied" msgpack:"gating_applied"`
	Blocks           int     `json:"blocks" msgpack:"blocks"`
	GatedBlocks      int     `json:"gated_blocks" msgpack:"gated_blocks"`
	// Silent is set when the integrated value is the silence sentinel.
	Silent bool `json:"silent" msgpack:"silent"`
	// NonFinite counts NaN and infinite samples, measured as zero.
	NonFinite int `json:"non_finite" msgpack:"non_finite"`
}

// BlockLoudness is one momentary block of a loudness-over-time stream.
type BlockLoudness struct {
	Time float64 `json:"time" msgpack:"time"`
	LUFS float64 `json:"lufs" msgpack:"lufs"`
}

// LoudnessMeter integrates weighted power over one measurement window.
//
// Momentary (400 ms) and short-term (3 s) blocks are both assembled from a
// single stream of sub-block power sums, so one pass over the audio serves
// every block length. A meter is used for a single measurement and is not
// safe for concurrent use.
type LoudnessMeter struct {
	cfg        config.Loudness
	sampleRate float64
	channels   int
	filter     *weighting.Filter
	peaks      *TruePeakDetector

	subFrames int
	momFrames int
	momHop    int // in sub-blocks
	stFrames  int
	stHop     int // in sub-blocks

	subs      []float64
	cur       float64
	curFrames int
	total     float64
	frames    int
	nonFinite int
}

// NewLoudnessMeter prepares a meter for audio of the given format.
func NewLoudnessMeter(format audio.Format, lc config.Loudness, tc config.TruePeak) (*LoudnessMeter, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	f, err := weighting.NewFilter(lc.Weighting, format.SampleRate, format.Channels)
	if err != nil {
		return nil, err
	}

	sr := format.SampleRate
	momFrames := max(1, int(math.Round(lc.MomentaryBlock*sr)))
	momHopFrames := max(1, int(math.Round(float64(momFrames)*(1-lc.MomentaryOverlap))))
	stFrames := max(momFrames, int(math.Round(lc.ShortTermBlock*sr)))
	stHopFrames := max(1, int(math.Round(float64(stFrames)*(1-lc.ShortTermOverlap))))

	sub := gcd(gcd(momFrames, momHopFrames), gcd(stFrames, stHopFrames))

	return &LoudnessMeter{
		cfg:        lc,
		sampleRate: sr,
		channels:   format.Channels,
		filter:     f,
		peaks:      NewTruePeakDetector(format.Channels, tc),
		subFrames:  sub,
		momFrames:  momFrames,
		momHop:     momHopFrames / sub,
		stFrames:   stFrames,
		stHop:      stHopFrames / sub,
	}, nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// MinFrames is the smallest number of frames that yields a result.
func (m *LoudnessMeter) MinFrames() int {
	return m.momFrames
}

// Process feeds one block of interleaved audio.
func (m *LoudnessMeter) Process(b *audio.Block) error {
	if b.Channels != m.channels {
		return fmt.Errorf("%w: block has %d channels, meter expects %d",
			audio.ErrUnsupportedChannelLayout, b.Channels, m.channels)
	}

	samples, bad := finiteSamples(b.Samples)
	m.nonFinite += bad
	m.peaks.Process(samples)
	weighted := m.filter.Process(samples)

	for i := 0; i+m.channels <= len(weighted); i += m.channels {
		var p float64
		for ch := 0; ch < m.channels; ch++ {
			v := weighted[i+ch]
			p += v * v
		}
		m.cur += p
		m.total += p
		m.curFrames++
		m.frames++
		if m.curFrames == m.subFrames {
			m.subs = append(m.subs, m.cur)
			m.cur = 0
			m.curFrames = 0
		}
	}
	return nil
}

// finiteSamples returns samples with NaN and Inf replaced by zero, and how
// many were replaced. The input is returned as is when it is clean.
func finiteSamples(samples []float64) ([]float64, int) {
	bad := 0
	for _, v := range samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			bad++
		}
	}
	if bad == 0 {
		return samples, 0
	}
	out := make([]float64, len(samples))
	for i, v := range samples {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[i] = v
		}
	}
	return out, bad
}

// blockPowers returns mean-square powers of blocks of length blockFrames
// spaced hop sub-blocks apart.
func (m *LoudnessMeter) blockPowers(blockFrames, hop int) []float64 {
	span := blockFrames / m.subFrames
	var powers []float64
	for start := 0; start+span <= len(m.subs); start += hop {
		var sum float64
		for _, s := range m.subs[start : start+span] {
			sum += s
		}
		powers = append(powers, sum/float64(blockFrames))
	}
	return powers
}

func (m *LoudnessMeter) lufs(power float64) float64 {
	if power <= 0 {
		return m.cfg.SilenceFloor
	}
	return math.Max(m.cfg.SilenceFloor, m.cfg.Calibration+10.0*math.Log10(power))
}

func meanPower(powers []float64) float64 {
	if len(powers) == 0 {
		return 0
	}
	var sum float64
	for _, p := range powers {
		sum += p
	}
	return sum / float64(len(powers))
}

func (m *LoudnessMeter) shortTermPowers() []float64 {
	if m.frames < m.stFrames {
		return []float64{m.total / float64(m.frames)}
	}
	return m.blockPowers(m.stFrames, m.stHop)
}

// Momentary returns the ungated momentary block stream. Times are block
// starts relative to the first processed frame.
func (m *LoudnessMeter) Momentary() []BlockLoudness {
	powers := m.blockPowers(m.momFrames, m.momHop)
	hopSeconds := float64(m.momHop*m.subFrames) / m.sampleRate
	out := make([]BlockLoudness, len(powers))
	for i, p := range powers {
		out[i] = BlockLoudness{Time: float64(i) * hopSeconds, LUFS: m.lufs(p)}
	}
	return out
}

// Result finalizes the measurement.
func (m *LoudnessMeter) Result() (LoudnessResult, error) {
	floor := m.cfg.SilenceFloor
	if m.frames < m.momFrames {
		return LoudnessResult{}, fmt.Errorf("%w: %d frames, need %d for one %.0f ms gating block",
			audio.ErrInsufficientData, m.frames, m.momFrames, m.cfg.MomentaryBlock*1000)
	}

	momentary := m.blockPowers(m.momFrames, m.momHop)
	shortTerm := m.shortTermPowers()

	res := LoudnessResult{
		MomentaryMaxLUFS: floor,
		ShortTermMaxLUFS: floor,
		Blocks:           len(momentary),
		GatingApplied:    m.cfg.Gating,
		NonFinite:        m.nonFinite,
	}
	for _, p := range momentary {
		res.MomentaryMaxLUFS = math.Max(res.MomentaryMaxLUFS, m.lufs(p))
	}
	for _, p := range shortTerm {
		res.ShortTermMaxLUFS = math.Max(res.ShortTermMaxLUFS, m.lufs(p))
	}

	gated := momentary
	if m.cfg.Gating {
		gated = m.gate(momentary, m.cfg.RelativeGate, m.lufs(meanPower(momentary)))
	}
	res.GatedBlocks = len(gated)
	res.IntegratedLUFS = floor
	if len(gated) > 0 {
		res.IntegratedLUFS = m.lufs(meanPower(gated))
	}
	res.Silent = res.IntegratedLUFS <= floor

	res.LoudnessRange = m.loudnessRange(shortTerm)
	res.TruePeakDBTP = gain.LinearToDbFloor(m.peaks.Peak(), floor)
	res.SamplePeakDBFS = gain.LinearToDbFloor(m.peaks.SamplePeak(), floor)

	return res, nil
}

// gate applies the absolute gate and then drops blocks more than relGate dB
// below reference.
func (m *LoudnessMeter) gate(powers []float64, relGate, reference float64) []float64 {
	threshold := reference - relGate
	var kept []float64
	for _, p := range powers {
		l := m.lufs(p)
		if p > 0 && l > m.cfg.AbsoluteGate && l >= threshold {
			kept = append(kept, p)
		}
	}
	return kept
}

// loudnessRange follows EBU Tech 3342: short-term blocks gated absolutely,
// then relative to the mean of the survivors, spread between percentiles.
func (m *LoudnessMeter) loudnessRange(shortTerm []float64) float64 {
	var abs []float64
	for _, p := range shortTerm {
		if p > 0 && m.lufs(p) > m.cfg.AbsoluteGate {
			abs = append(abs, p)
		}
	}
	if len(abs) < 2 {
		return 0
	}

	kept := m.gate(abs, m.cfg.LRARelativeGate, m.lufs(meanPower(abs)))
	if len(kept) < 2 {
		return 0
	}

	levels := make([]float64, len(kept))
	for i, p := range kept {
		levels[i] = m.lufs(p)
	}
	sort.Float64s(levels)

	lo := stat.Quantile(m.cfg.LRALowPercentile, stat.Empirical, levels, nil)
	hi := stat.Quantile(m.cfg.LRAHighPercentile, stat.Empirical, levels, nil)
	return hi - lo
}

// MeasureLoudness runs a fresh meter over a single block.
func MeasureLoudness(b *audio.Block, cfg config.Config) (LoudnessResult, error) {
	m, err := NewLoudnessMeter(audio.Format{SampleRate: b.SampleRate, Channels: b.Channels}, cfg.Loudness, cfg.TruePeak)
	if err != nil {
		return LoudnessResult{}, err
	}
	if err := m.Process(b); err != nil {
		return LoudnessResult{}, err
	}
	return m.Result()
}
