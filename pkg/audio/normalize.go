package audio

import (
	"errors"
	"fmt"
	"math"
)

// ErrDegenerateSignal is returned when a buffer is silent (or close enough
// to silent that a scale factor would be meaningless).
var ErrDegenerateSignal = errors.New("degenerate signal: buffer is silent")

// NormalizeMode selects which amplitude metric the normalizer drives to the
// setpoint.
type NormalizeMode int

const (
	NormalizePeak NormalizeMode = iota
	NormalizeRMS
)

func (m NormalizeMode) String() string {
	switch m {
	case NormalizePeak:
		return "peak"
	case NormalizeRMS:
		return "rms"
	default:
		return "unknown"
	}
}

// silenceFloor is the amplitude below which a buffer is treated as silent.
const silenceFloor = 1e-6

// Normalize rescales a buffer so its peak or RMS amplitude hits the
// setpoint, returning a new buffer. The input is not modified.
//
// No clipping is applied after scaling: setpoints are expected to sit below
// full scale. The reference setpoints (peak 16384 of 32767) leave roughly
// 25% headroom, so a correctly configured session never overflows here.
func Normalize(b *Buffer, setpoint float64, mode NormalizeMode) (*Buffer, error) {
	if setpoint <= 0 {
		return nil, fmt.Errorf("setpoint must be positive, got %g", setpoint)
	}

	var level float64
	switch mode {
	case NormalizePeak:
		level = b.Peak()
	case NormalizeRMS:
		level = b.RMS()
	default:
		return nil, fmt.Errorf("unknown normalize mode %d", mode)
	}

	if level < silenceFloor {
		return nil, fmt.Errorf("%s level %g: %w", mode, level, ErrDegenerateSignal)
	}

	scale := setpoint / level
	out := &Buffer{
		Samples:  make([]int16, len(b.Samples)),
		Rate:     b.Rate,
		Channels: b.Channels,
	}
	for i, s := range b.Samples {
		out.Samples[i] = int16(math.Round(float64(s) * scale))
	}
	return out, nil
}
