package audio

import (
	"math"
	"time"
)

// Tone synthesizes a sine tone of the given frequency and duration at the
// requested peak amplitude.
func Tone(freq float64, d time.Duration, amplitude float64, rate int) *Buffer {
	n := int(float64(rate) * d.Seconds())
	b := &Buffer{
		Samples:  make([]int16, n),
		Rate:     rate,
		Channels: 1,
	}
	step := 2 * math.Pi * freq / float64(rate)
	for i := 0; i < n; i++ {
		b.Samples[i] = int16(math.Round(amplitude * math.Sin(step*float64(i))))
	}
	return b
}

// Silence returns a buffer of zeros, used as inter-segment padding.
func Silence(d time.Duration, rate, channels int) *Buffer {
	return NewBuffer(d, rate, channels)
}
