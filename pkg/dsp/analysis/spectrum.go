package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/justyntemme/mastermeter/pkg/audio"
	"github.com/justyntemme/mastermeter/pkg/config"
	"github.com/justyntemme/mastermeter/pkg/dsp/filter"
	"github.com/justyntemme/mastermeter/pkg/dsp/weighting"
)

// SpectrumBin is one reported frequency bin.
type SpectrumBin struct {
	FrequencyHz float64 `json:"frequency_hz" msgpack:"frequency_hz"`
	MagnitudeDB float64 `json:"magnitude_db" msgpack:"magnitude_db"`
}

// SpectrumResult is an averaged magnitude spectrum of fft_size/2 bins.
type SpectrumResult struct {
	Bins       []SpectrumBin `json:"bins" msgpack:"bins"`
	Weighting  string        `json:"weighting" msgpack:"weighting"`
	Window     string        `json:"window" msgpack:"window"`
	Padded     bool          `json:"padded" msgpack:"padded"`
	FFTSize    int           `json:"fft_size" msgpack:"fft_size"`
	SampleRate float64       `json:"sample_rate" msgpack:"sample_rate"`
	Frames     int           `json:"frames" msgpack:"frames"`
	Averaged   int           `json:"averaged" msgpack:"averaged"`
	FloorDB    float64       `json:"floor_db" msgpack:"floor_db"`
}

// SpectrumAnalyzer accumulates a linear-averaged magnitude spectrum of the
// mono mixdown with 50% frame overlap. An analyzer serves one measurement.
type SpectrumAnalyzer struct {
	fft        *FFT
	sampleRate float64
	channels   int
	hop        int
	curve      weighting.Curve
	cascade    filter.Cascade
	floor      float64

	pending []float64
	sum     []float64
	count   int
	frames  int
	padSum  float64
}

// NewSpectrumAnalyzer validates fftSize and the weighting name and prepares
// an analyzer for audio of the given format.
func NewSpectrumAnalyzer(format audio.Format, fftSize int, weightingName string, sc config.Spectrum) (*SpectrumAnalyzer, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	win, err := ParseWindow(sc.Window)
	if err != nil {
		return nil, err
	}
	fft, err := NewFFT(fftSize, win)
	if err != nil {
		return nil, err
	}
	curve, err := weighting.Lookup(weightingName)
	if err != nil {
		return nil, err
	}
	cascade, err := weighting.Design(curve, format.SampleRate)
	if err != nil {
		return nil, err
	}

	return &SpectrumAnalyzer{
		fft:        fft,
		sampleRate: format.SampleRate,
		channels:   format.Channels,
		hop:        fftSize / 2,
		curve:      curve,
		cascade:    cascade,
		floor:      sc.FloorDB,
		pending:    make([]float64, 0, 2*fftSize),
		sum:        make([]float64, fftSize/2+1),
	}, nil
}

// Process mixes a block to mono and transforms every complete frame.
func (sa *SpectrumAnalyzer) Process(b *audio.Block) error {
	if b.Channels != sa.channels {
		return fmt.Errorf("%w: block has %d channels, analyzer expects %d",
			audio.ErrUnsupportedChannelLayout, b.Channels, sa.channels)
	}

	samples, _ := finiteSamples(b.Samples)
	scale := 1.0 / float64(sa.channels)
	for i := 0; i+sa.channels <= len(samples); i += sa.channels {
		var mono float64
		for ch := 0; ch < sa.channels; ch++ {
			mono += samples[i+ch]
		}
		sa.pending = append(sa.pending, mono*scale)
		sa.frames++

		if len(sa.pending) == sa.fft.Size() {
			sa.accumulate(sa.pending)
			n := copy(sa.pending, sa.pending[sa.hop:])
			sa.pending = sa.pending[:n]
		}
	}
	return nil
}

func (sa *SpectrumAnalyzer) accumulate(frame []float64) {
	mag := sa.fft.Forward(frame)
	for i, m := range mag {
		sa.sum[i] += m
	}
	sa.count++
}

// Result finalizes the spectrum. A window shorter than the transform is
// windowed at its own length, zero padded into one frame and flagged Padded.
func (sa *SpectrumAnalyzer) Result() (SpectrumResult, error) {
	if sa.frames == 0 {
		return SpectrumResult{}, fmt.Errorf("%w: no frames to analyze", audio.ErrInsufficientData)
	}

	size := sa.fft.Size()
	res := SpectrumResult{
		Weighting:  string(sa.curve),
		Window:     sa.fft.window.String(),
		FFTSize:    size,
		SampleRate: sa.sampleRate,
		Frames:     sa.frames,
		FloorDB:    sa.floor,
	}

	if sa.count == 0 {
		// window the real frames only so the level matches an unpadded frame
		mag, sum := sa.fft.ForwardPadded(sa.pending)
		for i, m := range mag {
			sa.sum[i] += m
		}
		sa.count = 1
		sa.padSum = sum
	}
	windowSum := sa.fft.WindowSum()
	if sa.padSum > 0 {
		windowSum = sa.padSum
		res.Padded = true
	}
	res.Averaged = sa.count

	norm := 2.0 / (windowSum * float64(sa.count))
	res.Bins = make([]SpectrumBin, size/2)
	for i := range res.Bins {
		freq := sa.fft.BinFrequency(i, sa.sampleRate)
		db := 20.0 * math.Log10(sa.sum[i]*norm)
		if sa.curve != weighting.None {
			db += 20.0 * math.Log10(sa.cascade.Magnitude(freq, sa.sampleRate))
		}
		if math.IsNaN(db) || db < sa.floor {
			db = sa.floor
		}
		res.Bins[i] = SpectrumBin{FrequencyHz: freq, MagnitudeDB: db}
	}
	return res, nil
}

// AnalyzeSpectrum runs a fresh analyzer over a single block.
func AnalyzeSpectrum(b *audio.Block, fftSize int, weightingName string, sc config.Spectrum) (SpectrumResult, error) {
	sa, err := NewSpectrumAnalyzer(audio.Format{SampleRate: b.SampleRate, Channels: b.Channels}, fftSize, weightingName, sc)
	if err != nil {
		return SpectrumResult{}, err
	}
	if err := sa.Process(b); err != nil {
		return SpectrumResult{}, err
	}
	return sa.Result()
}

// PeakFrequency returns the loudest bin above DC.
func (r SpectrumResult) PeakFrequency() (float64, float64) {
	if len(r.Bins) < 2 {
		return 0, r.FloorDB
	}
	best := 1
	for i := 2; i < len(r.Bins); i++ {
		if r.Bins[i].MagnitudeDB > r.Bins[best].MagnitudeDB {
			best = i
		}
	}
	return r.Bins[best].FrequencyHz, r.Bins[best].MagnitudeDB
}

// BandEnergyDB returns the power mean of the bins in [lo, hi] Hz, or the
// floor when no bin falls inside.
func (r SpectrumResult) BandEnergyDB(lo, hi float64) float64 {
	var sum float64
	var n int
	for _, b := range r.Bins {
		if b.FrequencyHz >= lo && b.FrequencyHz <= hi {
			sum += math.Pow(10, b.MagnitudeDB/10)
			n++
		}
	}
	if n == 0 || sum <= 0 {
		return r.FloorDB
	}
	return math.Max(r.FloorDB, 10*math.Log10(sum/float64(n)))
}

// BandLevel is the level of one fractional-octave band.
type BandLevel struct {
	CenterHz float64 `json:"center_hz" msgpack:"center_hz"`
	LevelDB  float64 `json:"level_db" msgpack:"level_db"`
}

// OctaveBands groups the spectrum into octave bands around centers.
func (r SpectrumResult) OctaveBands(centers []float64) []BandLevel {
	bands := make([]BandLevel, len(centers))
	for i, c := range centers {
		bands[i] = BandLevel{
			CenterHz: c,
			LevelDB:  r.BandEnergyDB(c/math.Sqrt2, c*math.Sqrt2),
		}
	}
	return bands
}

// StandardOctaveBands returns standard octave band center frequencies
func StandardOctaveBands() []float64 {
	return []float64{31.5, 63, 125, 250, 500, 1000, 2000, 4000, 8000, 16000}
}

// Tonal balance band edges in Hz.
const (
	LowBandMin  = 20.0
	LowBandMax  = 250.0
	MidBandMax  = 4000.0
	HighBandMax = 20000.0

	tonalThresholdDB = 6.0
)

// TonalBalance summarizes low/mid/high energy.
type TonalBalance struct {
	Overall string  `json:"overall" msgpack:"overall"`
	LowDB   float64 `json:"low_energy_db" msgpack:"low_energy_db"`
	MidDB   float64 `json:"mid_energy_db" msgpack:"mid_energy_db"`
	HighDB  float64 `json:"high_energy_db" msgpack:"high_energy_db"`
}

// TonalBalance classifies the spectrum as balanced, bass_heavy,
// mid_forward, bright or dull. The first rule that exceeds 6 dB wins.
func (r SpectrumResult) TonalBalance() TonalBalance {
	tb := TonalBalance{
		Overall: "balanced",
		LowDB:   r.BandEnergyDB(LowBandMin, LowBandMax),
		MidDB:   r.BandEnergyDB(LowBandMax, MidBandMax),
		HighDB:  r.BandEnergyDB(MidBandMax, HighBandMax),
	}
	switch {
	case tb.LowDB-tb.MidDB > tonalThresholdDB:
		tb.Overall = "bass_heavy"
	case tb.MidDB-tb.LowDB > tonalThresholdDB:
		tb.Overall = "mid_forward"
	case tb.HighDB-tb.MidDB > tonalThresholdDB:
		tb.Overall = "bright"
	case tb.MidDB-tb.HighDB > tonalThresholdDB:
		tb.Overall = "dull"
	}
	return tb
}

// FrequencyResponse rates the smoothness of the 100 Hz to 10 kHz response
// by the population standard deviation of its bin levels.
func (r SpectrumResult) FrequencyResponse() (string, float64) {
	if len(r.Bins) < 10 {
		return "insufficient_data", 0
	}
	var mags []float64
	for _, b := range r.Bins {
		if b.FrequencyHz >= 100 && b.FrequencyHz <= 10000 {
			mags = append(mags, b.MagnitudeDB)
		}
	}
	if len(mags) == 0 {
		return "no_midrange_data", 0
	}

	_, std := stat.PopMeanStdDev(mags, nil)
	switch {
	case std < 3:
		return "very_smooth", std
	case std < 6:
		return "smooth", std
	case std < 12:
		return "moderately_uneven", std
	default:
		return "very_uneven", std
	}
}
