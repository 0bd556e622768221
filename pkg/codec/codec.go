// Package codec invokes the external signal-processing collaborators: the
// analog compressor, the coded-signal modulator and its demodulator. All
// three are black-box tools exchanging headerless audio files; this package
// only owns their process lifecycle and file plumbing.
package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tmiw/radae-ota/pkg/audio"
	"github.com/tmiw/radae-ota/pkg/logging"
)

// ErrEncodingFailed is returned when a collaborator exits non-zero or
// produces an empty output buffer.
var ErrEncodingFailed = errors.New("external encoding tool failed")

// expand substitutes template placeholders in a command line and splits it
// into argv.
func expand(template string, subs map[string]string) ([]string, error) {
	line := template
	for k, v := range subs {
		line = strings.ReplaceAll(line, "{"+k+"}", v)
	}
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty collaborator command: %w", ErrEncodingFailed)
	}
	return parts, nil
}

// run executes a collaborator command, returning its combined output for
// diagnostics.
func run(ctx context.Context, argv []string) (string, error) {
	logging.Debugf("codec", "Running %s", strings.Join(argv, " "))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		logging.Errorf("codec", "%s failed: %v", argv[0], err)
		if output.Len() > 0 {
			logging.Debugf("codec", "Tool output:\n%s", output.String())
		}
		return output.String(), fmt.Errorf("%s: %v: %w", argv[0], err, ErrEncodingFailed)
	}
	return output.String(), nil
}

// Compressor runs the external analog compressor/clipper over a speech
// buffer. The command template may reference {in}, {out}, {rate} and
// {gain}.
type Compressor struct {
	Command string
	Gain    float64
}

// Compress feeds the buffer through the compressor and returns the
// power-limited result at the same rate.
func (c *Compressor) Compress(ctx context.Context, in *audio.Buffer) (*audio.Buffer, error) {
	dir, err := os.MkdirTemp("", "ota-compress")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "speech_in.raw")
	outPath := filepath.Join(dir, "speech_comp.raw")
	if err := audio.WriteRawFile(inPath, in); err != nil {
		return nil, err
	}

	argv, err := expand(c.Command, map[string]string{
		"in":   inPath,
		"out":  outPath,
		"rate": strconv.Itoa(in.Rate),
		"gain": strconv.FormatFloat(c.Gain, 'f', -1, 64),
	})
	if err != nil {
		return nil, err
	}
	if _, err := run(ctx, argv); err != nil {
		return nil, err
	}

	out, err := audio.ReadRawFile(outPath, in.Rate, in.Channels)
	if err != nil {
		return nil, fmt.Errorf("compressor produced no readable output: %v: %w", err, ErrEncodingFailed)
	}
	if len(out.Samples) == 0 {
		return nil, fmt.Errorf("compressor produced an empty buffer: %w", ErrEncodingFailed)
	}
	return out, nil
}

// Modulator runs the external coded-signal modulator. It consumes a speech
// file and emits a two-channel float32 stream at the link rate: channel 0
// is the real transmit signal, channel 1 is a diagnostic feed.
type Modulator struct {
	Command string
}

// Modulate produces the coded transmit signal for a speech buffer. Only
// channel 0 is returned; the diagnostic channel is discarded here since
// nothing downstream of the builder consumes it.
func (m *Modulator) Modulate(ctx context.Context, speech *audio.Buffer) (*audio.Buffer, error) {
	dir, err := os.MkdirTemp("", "ota-modulate")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "speech_in.raw")
	outPath := filepath.Join(dir, "coded.f32")
	if err := audio.WriteRawFile(inPath, speech); err != nil {
		return nil, err
	}

	argv, err := expand(m.Command, map[string]string{
		"in":   inPath,
		"out":  outPath,
		"rate": strconv.Itoa(audio.LinkSampleRate),
	})
	if err != nil {
		return nil, err
	}
	if _, err := run(ctx, argv); err != nil {
		return nil, err
	}

	floats, err := audio.ReadRawFloatFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("modulator produced no readable output: %v: %w", err, ErrEncodingFailed)
	}
	if len(floats) == 0 {
		return nil, fmt.Errorf("modulator produced an empty buffer: %w", ErrEncodingFailed)
	}

	// Deinterleave, keeping the signal channel. Modulator output is unit
	// scale; bring it up to sample scale before the normalizer runs.
	signal := make([]float32, 0, len(floats)/2)
	for i := 0; i+1 < len(floats); i += 2 {
		signal = append(signal, floats[i]*audio.FullScale)
	}
	return audio.FromFloats(signal, audio.LinkSampleRate, 1), nil
}

// Demodulator runs the external coded-signal demodulator over a received
// coded segment, producing decoded speech and a per-frame metrics stream
// (sync flag and SNR) on the tool's output.
type Demodulator struct {
	Command string
}

// Demodulate decodes a received coded segment. The raw metrics text is
// returned for the analysis layer to parse.
func (d *Demodulator) Demodulate(ctx context.Context, coded *audio.Buffer) (*audio.Buffer, string, error) {
	dir, err := os.MkdirTemp("", "ota-demod")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "coded_rx.raw")
	outPath := filepath.Join(dir, "decoded.raw")
	if err := audio.WriteRawFile(inPath, coded); err != nil {
		return nil, "", err
	}

	argv, err := expand(d.Command, map[string]string{
		"in":   inPath,
		"out":  outPath,
		"rate": strconv.Itoa(coded.Rate),
	})
	if err != nil {
		return nil, "", err
	}
	metricsText, err := run(ctx, argv)
	if err != nil {
		return nil, "", err
	}

	out, err := audio.ReadRawFile(outPath, coded.Rate, 1)
	if err != nil {
		return nil, "", fmt.Errorf("demodulator produced no readable output: %v: %w", err, ErrEncodingFailed)
	}
	if len(out.Samples) == 0 {
		return nil, "", fmt.Errorf("demodulator produced an empty buffer: %w", ErrEncodingFailed)
	}
	return out, metricsText, nil
}
