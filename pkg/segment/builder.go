package segment

import (
	"context"
	"fmt"
	"time"

	"github.com/tmiw/radae-ota/pkg/audio"
	"github.com/tmiw/radae-ota/pkg/logging"
)

// AnalogCompressor produces the power-limited analog reference signal.
type AnalogCompressor interface {
	Compress(ctx context.Context, in *audio.Buffer) (*audio.Buffer, error)
}

// CodedModulator produces the coded transmit signal for a speech buffer.
type CodedModulator interface {
	Modulate(ctx context.Context, speech *audio.Buffer) (*audio.Buffer, error)
}

// BuildParams configures one transmit stream build.
type BuildParams struct {
	ToneFreq     float64
	ToneDuration time.Duration
	Setpoint     float64
	Mode         audio.NormalizeMode
}

// Builder assembles the ordered transmit stream from a speech source,
// delegating the analog reference and coded signal to external
// collaborators and normalizing both to the same setpoint so they reach
// the receiver at equal characteristic amplitude.
type Builder struct {
	compressor AnalogCompressor
	modulator  CodedModulator
}

// NewBuilder creates a builder over the two encoding collaborators.
func NewBuilder(compressor AnalogCompressor, modulator CodedModulator) *Builder {
	return &Builder{compressor: compressor, modulator: modulator}
}

// Build constructs the transmit stream:
//
//	[Tone][AnalogReference][Pad 1s][Pad 1s][CodedSignal]
//
// speech (and the optional stationID prepended to it) is resampled to the
// link rate and downmixed to mono first. Both power-bearing segments are
// normalized to the setpoint.
func (b *Builder) Build(ctx context.Context, speech, stationID *audio.Buffer, params BuildParams) (*TransmitStream, error) {
	if speech == nil || len(speech.Samples) == 0 {
		return nil, fmt.Errorf("speech source is empty")
	}

	speech = audio.Resample(speech.ToMono(), audio.LinkSampleRate)
	if stationID != nil {
		stationID = audio.Resample(stationID.ToMono(), audio.LinkSampleRate)
		joined, err := audio.Concat(stationID, speech)
		if err != nil {
			return nil, fmt.Errorf("failed to prepend station ID: %w", err)
		}
		speech = joined
	}

	logging.Infof("segment", "Building transmit stream from %v of speech", speech.Duration().Round(time.Millisecond))

	// Calibration tone, generated at unit shape then normalized the same
	// way as the other segments so the setpoint means the same thing for
	// all three.
	tone := audio.Tone(params.ToneFreq, params.ToneDuration, audio.FullScale/2, audio.LinkSampleRate)
	tone, err := audio.Normalize(tone, params.Setpoint, params.Mode)
	if err != nil {
		return nil, fmt.Errorf("tone segment: %w", err)
	}

	analog, err := b.compressor.Compress(ctx, speech)
	if err != nil {
		return nil, fmt.Errorf("analog reference: %w", err)
	}
	analog, err = audio.Normalize(analog, params.Setpoint, params.Mode)
	if err != nil {
		return nil, fmt.Errorf("analog reference: %w", err)
	}

	coded, err := b.modulator.Modulate(ctx, speech)
	if err != nil {
		return nil, fmt.Errorf("coded signal: %w", err)
	}
	coded, err = audio.Normalize(coded, params.Setpoint, params.Mode)
	if err != nil {
		return nil, fmt.Errorf("coded signal: %w", err)
	}

	pad := audio.Silence(InterSegmentPad, audio.LinkSampleRate, 1)
	leadPad := audio.Silence(CodedLeadPad, audio.LinkSampleRate, 1)

	segments := []Segment{
		{Role: RoleTone, Buffer: tone},
		{Role: RoleAnalogReference, Buffer: analog},
		{Role: RolePadding, Buffer: pad},
		{Role: RolePadding, Buffer: leadPad},
		{Role: RoleCodedSignal, Buffer: coded},
	}

	bufs := make([]*audio.Buffer, len(segments))
	for i, s := range segments {
		bufs[i] = s.Buffer
	}
	stream, err := audio.Concat(bufs...)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble transmit stream: %w", err)
	}

	ts := &TransmitStream{
		Buffer:         stream,
		Segments:       segments,
		ToneDuration:   tone.Duration(),
		AnalogDuration: analog.Duration(),
		CodedDuration:  coded.Duration(),
	}
	logging.Infof("segment", "Transmit stream: tone %v + analog %v + pads %v + coded %v = %v",
		ts.ToneDuration, ts.AnalogDuration, InterSegmentPad+CodedLeadPad, ts.CodedDuration,
		stream.Duration().Round(time.Millisecond))
	return ts, nil
}
