package audio

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every package of the engine. Callers match with
// errors.Is; the wrapped message names the offending parameter.
var (
	ErrInvalidWindow            = errors.New("invalid measurement window")
	ErrInvalidParameter         = errors.New("invalid parameter")
	ErrInsufficientData         = errors.New("insufficient data")
	ErrUnsupportedChannelLayout = errors.New("unsupported channel layout")
	ErrTrackNotFound            = errors.New("track not found")
	ErrTimeRangeUnavailable     = errors.New("time range unavailable")

	// ErrUnknownWeighting and ErrUnknownPreset are both invalid parameters.
	ErrUnknownWeighting = fmt.Errorf("%w: unknown weighting", ErrInvalidParameter)
	ErrUnknownPreset    = fmt.Errorf("%w: unknown preset", ErrInvalidParameter)
)
