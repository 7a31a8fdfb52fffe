// Package wavfile reads and writes integer PCM WAV files and serves them to
// the engine as an audio.Source.
package wavfile

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/justyntemme/mastermeter/pkg/audio"
)

// WAVE format tags accepted by Decode.
const (
	formatPCM        = 1
	formatExtensible = 0xFFFE
)

// ErrInvalidFile is returned for files that are not readable PCM WAV.
var ErrInvalidFile = errors.New("invalid wav file")

// Decode reads every frame of r as interleaved float64 scaled to [-1, 1).
func Decode(r io.ReadSeeker) (audio.Format, []float64, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return audio.Format{}, nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
		}
		return audio.Format{}, nil, ErrInvalidFile
	}
	if dec.WavAudioFormat != formatPCM && dec.WavAudioFormat != formatExtensible {
		return audio.Format{}, nil, fmt.Errorf("%w: wave format %d is not integer PCM", ErrInvalidFile, dec.WavAudioFormat)
	}

	format := audio.Format{SampleRate: float64(dec.SampleRate), Channels: int(dec.NumChans)}
	if err := format.Validate(); err != nil {
		return audio.Format{}, nil, err
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return audio.Format{}, nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	bits := int(dec.BitDepth)
	scale := math.Ldexp(1, bits-1)
	frames := len(buf.Data) / format.Channels
	samples := make([]float64, frames*format.Channels)
	for i := range samples {
		v := float64(buf.Data[i])
		if bits == 8 {
			// 8-bit WAV is unsigned.
			v -= 128
		}
		samples[i] = v / scale
	}
	return format, samples, nil
}

// Read decodes the file at path.
func Read(path string) (audio.Format, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return audio.Format{}, nil, err
	}
	defer f.Close()

	format, samples, err := Decode(f)
	if err != nil {
		return audio.Format{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	return format, samples, nil
}

// Encode writes b as integer PCM at bitDepth (16, 24 or 32). Samples are
// clipped to [-1, 1]; NaN and infinite samples are written as silence.
func Encode(w io.WriteSeeker, b *audio.Block, bitDepth int) error {
	if bitDepth != 16 && bitDepth != 24 && bitDepth != 32 {
		return fmt.Errorf("%w: bit depth must be 16, 24 or 32, got %d", audio.ErrInvalidParameter, bitDepth)
	}
	format := audio.Format{SampleRate: b.SampleRate, Channels: b.Channels}
	if err := format.Validate(); err != nil {
		return err
	}
	if b.SampleRate != math.Trunc(b.SampleRate) {
		return fmt.Errorf("%w: wav sample rate must be integral, got %v", audio.ErrInvalidParameter, b.SampleRate)
	}

	full := math.Ldexp(1, bitDepth-1) - 1
	data := make([]int, b.Frames()*b.Channels)
	for i := range data {
		v := b.Samples[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		v = math.Max(-1, math.Min(1, v))
		data[i] = int(math.Round(v * full))
	}

	enc := wav.NewEncoder(w, int(b.SampleRate), bitDepth, b.Channels, formatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: b.Channels, SampleRate: int(b.SampleRate)},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return enc.Close()
}

// Write encodes b to a new file at path.
func Write(path string, b *audio.Block, bitDepth int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, b, bitDepth); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}
