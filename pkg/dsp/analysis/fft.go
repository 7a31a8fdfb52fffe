package analysis

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/justyntemme/mastermeter/pkg/audio"
)

const (
	// MinFFTSize and MaxFFTSize bound the accepted transform lengths.
	MinFFTSize = 16
	MaxFFTSize = 65536
)

// WindowFunc represents a window function type
type WindowFunc int

const (
	RectangularWindow WindowFunc = iota
	HannWindow
	HammingWindow
	BlackmanWindow
	BlackmanHarrisWindow
	KaiserWindow
	FlatTopWindow
)

var windowNames = map[WindowFunc]string{
	RectangularWindow:    "rectangular",
	HannWindow:           "hann",
	HammingWindow:        "hamming",
	BlackmanWindow:       "blackman",
	BlackmanHarrisWindow: "blackman-harris",
	KaiserWindow:         "kaiser",
	FlatTopWindow:        "flattop",
}

func (w WindowFunc) String() string {
	if name, ok := windowNames[w]; ok {
		return name
	}
	return fmt.Sprintf("window(%d)", int(w))
}

// ParseWindow resolves a window name such as "hann" or "blackman-harris".
func ParseWindow(name string) (WindowFunc, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return HannWindow, nil
	}
	for w, wn := range windowNames {
		if wn == n {
			return w, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown analysis window %q", audio.ErrInvalidParameter, name)
}

// ValidFFTSize reports whether size is a power of two within
// [MinFFTSize, MaxFFTSize].
func ValidFFTSize(size int) bool {
	return size >= MinFFTSize && size <= MaxFFTSize && size&(size-1) == 0
}

// Coefficients returns the window of the given length.
func (w WindowFunc) Coefficients(size int) []float64 {
	data := make([]float64, size)
	if size == 1 {
		data[0] = 1
		return data
	}
	n := float64(size)

	switch w {
	case HannWindow:
		for i := range data {
			data[i] = 0.5 * (1.0 - math.Cos(2.0*math.Pi*float64(i)/(n-1.0)))
		}

	case HammingWindow:
		for i := range data {
			data[i] = 0.54 - 0.46*math.Cos(2.0*math.Pi*float64(i)/(n-1.0))
		}

	case BlackmanWindow:
		for i := range data {
			val := 0.42 - 0.5*math.Cos(2.0*math.Pi*float64(i)/(n-1.0)) +
				0.08*math.Cos(4.0*math.Pi*float64(i)/(n-1.0))
			data[i] = math.Max(val, 0)
		}

	case BlackmanHarrisWindow:
		a0, a1, a2, a3 := 0.35875, 0.48829, 0.14128, 0.01168
		for i := range data {
			data[i] = a0 - a1*math.Cos(2.0*math.Pi*float64(i)/(n-1.0)) +
				a2*math.Cos(4.0*math.Pi*float64(i)/(n-1.0)) -
				a3*math.Cos(6.0*math.Pi*float64(i)/(n-1.0))
		}

	case KaiserWindow:
		// beta = 8.6
		beta := 8.6
		for i := range data {
			x := 2.0*float64(i)/(n-1.0) - 1.0
			data[i] = bessel0(beta*math.Sqrt(1.0-x*x)) / bessel0(beta)
		}

	case FlatTopWindow:
		a0, a1, a2, a3, a4 := 0.21557895, 0.41663158, 0.277263158, 0.083578947, 0.006947368
		for i := range data {
			val := a0 - a1*math.Cos(2.0*math.Pi*float64(i)/(n-1.0)) +
				a2*math.Cos(4.0*math.Pi*float64(i)/(n-1.0)) -
				a3*math.Cos(6.0*math.Pi*float64(i)/(n-1.0)) +
				a4*math.Cos(8.0*math.Pi*float64(i)/(n-1.0))
			data[i] = math.Max(val, 0)
		}

	default:
		for i := range data {
			data[i] = 1.0
		}
	}
	return data
}

// FFT is a windowed real-input transform of fixed size.
// An FFT is not safe for concurrent use.
type FFT struct {
	size       int
	window     WindowFunc
	windowData []float64
	windowSum  float64
	fft        *fourier.FFT
	in         []float64
	coeffs     []complex128
	magnitude  []float64
}

// NewFFT creates a new FFT processor with the specified size and window function
func NewFFT(size int, window WindowFunc) (*FFT, error) {
	if !ValidFFTSize(size) {
		return nil, fmt.Errorf("%w: fft_size %d must be a power of two in [%d, %d]",
			audio.ErrInvalidParameter, size, MinFFTSize, MaxFFTSize)
	}

	f := &FFT{
		size:       size,
		window:     window,
		windowData: window.Coefficients(size),
		fft:        fourier.NewFFT(size),
		in:         make([]float64, size),
		coeffs:     make([]complex128, size/2+1),
		magnitude:  make([]float64, size/2+1),
	}
	for _, w := range f.windowData {
		f.windowSum += w
	}
	return f, nil
}

// Size returns the transform length.
func (f *FFT) Size() int { return f.size }

// WindowSum returns the sum of the window coefficients.
func (f *FFT) WindowSum() float64 { return f.windowSum }

// Forward windows input and returns the magnitude spectrum, size/2+1 bins.
// Input shorter than the transform is zero padded after the full-length
// window, see ForwardPadded for short frames. The returned slice is reused
// by the next call.
func (f *FFT) Forward(input []float64) []float64 {
	for i := range f.in {
		if i < len(input) {
			f.in[i] = input[i] * f.windowData[i]
		} else {
			f.in[i] = 0.0
		}
	}

	return f.transform()
}

// ForwardPadded windows input with a window of its own length, zero pads it
// to the transform size and returns the magnitudes with that window's sum.
// Input at least as long as the transform behaves like Forward.
func (f *FFT) ForwardPadded(input []float64) ([]float64, float64) {
	if len(input) >= f.size {
		return f.Forward(input[:f.size]), f.windowSum
	}
	win := f.window.Coefficients(len(input))
	var sum float64
	for i := range f.in {
		if i < len(input) {
			f.in[i] = input[i] * win[i]
			sum += win[i]
		} else {
			f.in[i] = 0.0
		}
	}
	return f.transform(), sum
}

func (f *FFT) transform() []float64 {
	f.coeffs = f.fft.Coefficients(f.coeffs, f.in)
	for i, c := range f.coeffs {
		f.magnitude[i] = cmplx.Abs(c)
	}
	return f.magnitude
}

// BinFrequency returns the center frequency of a bin.
func (f *FFT) BinFrequency(bin int, sampleRate float64) float64 {
	return float64(bin) * sampleRate / float64(f.size)
}

// bessel0 computes the modified Bessel function of the first kind, order 0
func bessel0(x float64) float64 {
	sum := 1.0
	term := 1.0
	for k := 1; k <= 25; k++ {
		term *= (x * x) / (4.0 * float64(k) * float64(k))
		sum += term
		if term < 1e-12 {
			break
		}
	}
	return sum
}
