package audio

// Resample converts a mono buffer to a new sample rate using linear
// interpolation. Good enough for speech headed into a compressor; the link
// runs at one fixed rate so this only ever runs once per source file.
func Resample(b *Buffer, newRate int) *Buffer {
	if b.Rate == newRate || len(b.Samples) == 0 {
		return &Buffer{Samples: append([]int16(nil), b.Samples...), Rate: newRate, Channels: b.Channels}
	}

	ratio := float64(b.Rate) / float64(newRate)
	frames := b.Frames()
	outFrames := int(float64(frames) / ratio)
	out := &Buffer{
		Samples:  make([]int16, outFrames*b.Channels),
		Rate:     newRate,
		Channels: b.Channels,
	}

	for i := 0; i < outFrames; i++ {
		pos := float64(i) * ratio
		i0 := int(pos)
		i1 := i0 + 1
		if i1 >= frames {
			i1 = frames - 1
		}
		frac := pos - float64(i0)
		for c := 0; c < b.Channels; c++ {
			s0 := float64(b.Samples[i0*b.Channels+c])
			s1 := float64(b.Samples[i1*b.Channels+c])
			out.Samples[i*b.Channels+c] = int16(s0 + (s1-s0)*frac)
		}
	}
	return out
}
