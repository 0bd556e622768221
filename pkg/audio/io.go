package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// The harness exchanges audio with external collaborators as headerless
// S16LE files at a known rate, the same convention the capture client and
// the codec tools use.

// ReadRawFile loads a headerless S16LE file as a buffer with the given
// format.
func ReadRawFile(path string, rate, channels int) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()
	return ReadRaw(f, rate, channels)
}

// ReadRaw reads headerless S16LE samples from r until EOF.
func ReadRaw(r io.Reader, rate, channels int) (*Buffer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}
	if len(data)%2 != 0 {
		// Trailing odd byte from a truncated write; drop it.
		data = data[:len(data)-1]
	}
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return &Buffer{Samples: samples, Rate: rate, Channels: channels}, nil
}

// WriteRawFile writes a buffer as a headerless S16LE file.
func WriteRawFile(path string, b *Buffer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create audio file: %w", err)
	}
	defer f.Close()
	if err := WriteRaw(f, b); err != nil {
		return err
	}
	return f.Close()
}

// WriteRaw writes a buffer's samples to w as S16LE.
func WriteRaw(w io.Writer, b *Buffer) error {
	data := make([]byte, len(b.Samples)*2)
	for i, s := range b.Samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write audio data: %w", err)
	}
	return nil
}

// ReadRawFloatFile loads a headerless float32 LE file, the format the
// coded-signal modulator emits.
func ReadRawFloatFile(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read float audio file: %w", err)
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("float audio file %s has %d bytes, not a multiple of 4", path, len(data))
	}
	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples, nil
}
