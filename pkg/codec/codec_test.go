package codec

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tmiw/radae-ota/pkg/audio"
)

// writeScript drops an executable shell script into dir and returns its
// path.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}
	return path
}

func TestCompressor(t *testing.T) {
	dir := t.TempDir()
	speech := audio.Tone(300, time.Second, 8000, audio.LinkSampleRate)

	t.Run("Pass Through", func(t *testing.T) {
		script := writeScript(t, dir, "comp_ok.sh", `cp "$1" "$2"`)
		c := &Compressor{Command: script + " {in} {out} {gain}", Gain: 6}

		out, err := c.Compress(context.Background(), speech)
		if err != nil {
			t.Fatalf("Compress failed: %v", err)
		}
		if out.Frames() != speech.Frames() {
			t.Errorf("Expected %d frames, got %d", speech.Frames(), out.Frames())
		}
	})

	t.Run("Nonzero Exit", func(t *testing.T) {
		script := writeScript(t, dir, "comp_fail.sh", `exit 3`)
		c := &Compressor{Command: script + " {in} {out}"}

		_, err := c.Compress(context.Background(), speech)
		if !errors.Is(err, ErrEncodingFailed) {
			t.Errorf("Expected ErrEncodingFailed, got: %v", err)
		}
	})

	t.Run("Empty Output", func(t *testing.T) {
		script := writeScript(t, dir, "comp_empty.sh", `: > "$2"`)
		c := &Compressor{Command: script + " {in} {out}"}

		_, err := c.Compress(context.Background(), speech)
		if !errors.Is(err, ErrEncodingFailed) {
			t.Errorf("Expected ErrEncodingFailed, got: %v", err)
		}
	})
}

func TestModulator(t *testing.T) {
	dir := t.TempDir()
	speech := audio.Tone(300, time.Second, 8000, audio.LinkSampleRate)

	// Two-channel float fixture: channel 0 a half-scale ramp, channel 1 a
	// constant diagnostic value that must be discarded.
	frames := 1000
	fixture := filepath.Join(dir, "coded_fixture.f32")
	data := make([]byte, frames*2*4)
	for i := 0; i < frames; i++ {
		ch0 := float32(i%100) / 200.0
		binary.LittleEndian.PutUint32(data[i*8:], math.Float32bits(ch0))
		binary.LittleEndian.PutUint32(data[i*8+4:], math.Float32bits(0.99))
	}
	if err := os.WriteFile(fixture, data, 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	t.Run("Keeps Signal Channel Only", func(t *testing.T) {
		script := writeScript(t, dir, "mod_ok.sh", `cp "`+fixture+`" "$2"`)
		m := &Modulator{Command: script + " {in} {out}"}

		out, err := m.Modulate(context.Background(), speech)
		if err != nil {
			t.Fatalf("Modulate failed: %v", err)
		}
		if out.Frames() != frames {
			t.Errorf("Expected %d frames, got %d", frames, out.Frames())
		}
		if out.Channels != 1 {
			t.Errorf("Expected mono output, got %d channels", out.Channels)
		}
		// Half-scale ch0 ramps to 0.495 full scale; the 0.99 diagnostic
		// channel would push the peak near full scale if it leaked in.
		if peak := out.Peak(); peak > 0.6*audio.FullScale {
			t.Errorf("Diagnostic channel leaked into signal: peak %f", peak)
		}
	})

	t.Run("Nonzero Exit", func(t *testing.T) {
		script := writeScript(t, dir, "mod_fail.sh", `exit 1`)
		m := &Modulator{Command: script + " {in} {out}"}

		_, err := m.Modulate(context.Background(), speech)
		if !errors.Is(err, ErrEncodingFailed) {
			t.Errorf("Expected ErrEncodingFailed, got: %v", err)
		}
	})

	t.Run("Empty Output", func(t *testing.T) {
		script := writeScript(t, dir, "mod_empty.sh", `: > "$2"`)
		m := &Modulator{Command: script + " {in} {out}"}

		_, err := m.Modulate(context.Background(), speech)
		if !errors.Is(err, ErrEncodingFailed) {
			t.Errorf("Expected ErrEncodingFailed, got: %v", err)
		}
	})
}

func TestDemodulator(t *testing.T) {
	dir := t.TempDir()
	coded := audio.Tone(1000, time.Second, 8000, audio.LinkSampleRate)

	t.Run("Decodes And Returns Metrics", func(t *testing.T) {
		script := writeScript(t, dir, "demod_ok.sh",
			`cp "$1" "$2"
echo "frame 0 sync 1 snr 8.5"
echo "frame 1 sync 1 snr 9.0"`)
		d := &Demodulator{Command: script + " {in} {out}"}

		out, metrics, err := d.Demodulate(context.Background(), coded)
		if err != nil {
			t.Fatalf("Demodulate failed: %v", err)
		}
		if out.Frames() != coded.Frames() {
			t.Errorf("Expected %d frames, got %d", coded.Frames(), out.Frames())
		}
		if metrics == "" {
			t.Error("Expected metrics text on tool output")
		}
	})

	t.Run("Nonzero Exit", func(t *testing.T) {
		script := writeScript(t, dir, "demod_fail.sh", `exit 2`)
		d := &Demodulator{Command: script + " {in} {out}"}

		_, _, err := d.Demodulate(context.Background(), coded)
		if !errors.Is(err, ErrEncodingFailed) {
			t.Errorf("Expected ErrEncodingFailed, got: %v", err)
		}
	})
}
