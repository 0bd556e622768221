package audio

import (
	"fmt"
	"math"
	"time"
)

// LinkSampleRate is the fixed sample rate of the radio link in Hz. Every
// buffer that ends up on the air is resampled to this rate first.
const LinkSampleRate = 8000

// LinkChannels is the channel count of the link (mono).
const LinkChannels = 1

// FullScale is the largest magnitude an int16 sample can carry.
const FullScale = 32767

// Buffer holds a block of PCM audio samples together with its format.
// Samples are interleaved when Channels > 1.
type Buffer struct {
	Samples  []int16
	Rate     int
	Channels int
}

// NewBuffer allocates a silent buffer of the given duration.
func NewBuffer(d time.Duration, rate, channels int) *Buffer {
	n := int(float64(rate)*d.Seconds()) * channels
	return &Buffer{
		Samples:  make([]int16, n),
		Rate:     rate,
		Channels: channels,
	}
}

// Duration returns the play time of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.Rate == 0 || b.Channels == 0 {
		return 0
	}
	frames := len(b.Samples) / b.Channels
	return time.Duration(float64(frames) / float64(b.Rate) * float64(time.Second))
}

// Frames returns the number of sample frames (samples per channel).
func (b *Buffer) Frames() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Peak returns the largest absolute sample value in the buffer.
func (b *Buffer) Peak() float64 {
	peak := 0.0
	for _, s := range b.Samples {
		v := math.Abs(float64(s))
		if v > peak {
			peak = v
		}
	}
	return peak
}

// RMS returns the root mean square amplitude of the buffer.
func (b *Buffer) RMS() float64 {
	if len(b.Samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range b.Samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(b.Samples)))
}

// Slice returns a view of the buffer between two time offsets. The slice
// shares underlying storage with the parent buffer.
func (b *Buffer) Slice(from, to time.Duration) (*Buffer, error) {
	start := int(float64(b.Rate)*from.Seconds()) * b.Channels
	end := int(float64(b.Rate)*to.Seconds()) * b.Channels
	if start < 0 || end > len(b.Samples) || start > end {
		return nil, fmt.Errorf("slice [%v, %v) out of range for %v buffer", from, to, b.Duration())
	}
	return &Buffer{
		Samples:  b.Samples[start:end],
		Rate:     b.Rate,
		Channels: b.Channels,
	}, nil
}

// Concat joins buffers into a new buffer. All inputs must share sample rate
// and channel count; mixing formats on the transmit stream is a build error,
// not something to paper over with silent conversion.
func Concat(bufs ...*Buffer) (*Buffer, error) {
	if len(bufs) == 0 {
		return nil, fmt.Errorf("nothing to concatenate")
	}
	rate := bufs[0].Rate
	channels := bufs[0].Channels
	total := 0
	for i, b := range bufs {
		if b.Rate != rate || b.Channels != channels {
			return nil, fmt.Errorf("buffer %d format %d Hz/%dch does not match %d Hz/%dch",
				i, b.Rate, b.Channels, rate, channels)
		}
		total += len(b.Samples)
	}
	out := &Buffer{
		Samples:  make([]int16, 0, total),
		Rate:     rate,
		Channels: channels,
	}
	for _, b := range bufs {
		out.Samples = append(out.Samples, b.Samples...)
	}
	return out, nil
}

// ToMono averages interleaved channels down to a single channel. A buffer
// that is already mono is returned unchanged.
func (b *Buffer) ToMono() *Buffer {
	if b.Channels <= 1 {
		return b
	}
	frames := b.Frames()
	out := &Buffer{
		Samples:  make([]int16, frames),
		Rate:     b.Rate,
		Channels: 1,
	}
	for i := 0; i < frames; i++ {
		sum := 0
		for c := 0; c < b.Channels; c++ {
			sum += int(b.Samples[i*b.Channels+c])
		}
		out.Samples[i] = int16(sum / b.Channels)
	}
	return out
}

// FromFloats converts float samples to an int16 buffer without rescaling.
// Values outside int16 range are clamped.
func FromFloats(samples []float32, rate, channels int) *Buffer {
	out := &Buffer{
		Samples:  make([]int16, len(samples)),
		Rate:     rate,
		Channels: channels,
	}
	for i, s := range samples {
		v := math.Round(float64(s))
		if v > FullScale {
			v = FullScale
		} else if v < -FullScale-1 {
			v = -FullScale - 1
		}
		out.Samples[i] = int16(v)
	}
	return out
}
