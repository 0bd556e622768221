package segment

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmiw/radae-ota/pkg/audio"
)

// fakeCompressor passes speech through with a mild gain, standing in for
// the external clipper.
type fakeCompressor struct{}

func (fakeCompressor) Compress(ctx context.Context, in *audio.Buffer) (*audio.Buffer, error) {
	out := &audio.Buffer{Samples: make([]int16, len(in.Samples)), Rate: in.Rate, Channels: in.Channels}
	for i, s := range in.Samples {
		out.Samples[i] = s / 2
	}
	return out, nil
}

// fakeModulator emits a tone one second longer than the speech, matching
// the frame padding the real modulator adds.
type fakeModulator struct{}

func (fakeModulator) Modulate(ctx context.Context, speech *audio.Buffer) (*audio.Buffer, error) {
	return audio.Tone(1500, speech.Duration()+time.Second, 6000, audio.LinkSampleRate), nil
}

func canonicalParams() BuildParams {
	return BuildParams{
		ToneFreq:     1000,
		ToneDuration: 4 * time.Second,
		Setpoint:     16384,
		Mode:         audio.NormalizePeak,
	}
}

func TestBuild(t *testing.T) {
	builder := NewBuilder(fakeCompressor{}, fakeModulator{})

	t.Run("Canonical Layout", func(t *testing.T) {
		speech := audio.Tone(440, 10*time.Second, 8000, audio.LinkSampleRate)

		ts, err := builder.Build(context.Background(), speech, nil, canonicalParams())
		require.NoError(t, err)

		// 4s tone + 10s analog + 1s pad + 1s pad + 11s coded = 27s.
		assert.Equal(t, 27*time.Second, ts.Buffer.Duration())
		assert.Equal(t, 4*time.Second, ts.ToneDuration)
		assert.Equal(t, 10*time.Second, ts.AnalogDuration)
		assert.Equal(t, 11*time.Second, ts.CodedDuration)

		// Both power-bearing segments arrive at the setpoint.
		var analog, coded *audio.Buffer
		for _, s := range ts.Segments {
			switch s.Role {
			case RoleAnalogReference:
				analog = s.Buffer
			case RoleCodedSignal:
				coded = s.Buffer
			}
		}
		require.NotNil(t, analog)
		require.NotNil(t, coded)
		assert.InDelta(t, 16384, analog.Peak(), 2)
		assert.InDelta(t, 16384, coded.Peak(), 2)
	})

	t.Run("RMS Setpoint", func(t *testing.T) {
		speech := audio.Tone(440, 5*time.Second, 8000, audio.LinkSampleRate)
		params := canonicalParams()
		params.Setpoint = 2048
		params.Mode = audio.NormalizeRMS

		ts, err := builder.Build(context.Background(), speech, nil, params)
		require.NoError(t, err)

		for _, s := range ts.Segments {
			if s.Role == RolePadding {
				continue
			}
			assert.InDelta(t, 2048, s.Buffer.RMS(), 8, "segment %s RMS", s.Role)
		}
	})

	t.Run("Station ID Prepended", func(t *testing.T) {
		speech := audio.Tone(440, 10*time.Second, 8000, audio.LinkSampleRate)
		stationID := audio.Tone(600, 2*time.Second, 8000, audio.LinkSampleRate)

		ts, err := builder.Build(context.Background(), speech, stationID, canonicalParams())
		require.NoError(t, err)

		// Speech becomes 12s, so analog 12s and coded 13s: 4+12+2+13 = 31s.
		assert.Equal(t, 12*time.Second, ts.AnalogDuration)
		assert.Equal(t, 31*time.Second, ts.Buffer.Duration())
	})

	t.Run("Resamples Foreign Rate", func(t *testing.T) {
		speech := audio.Tone(440, 10*time.Second, 8000, 48000)

		ts, err := builder.Build(context.Background(), speech, nil, canonicalParams())
		require.NoError(t, err)
		assert.Equal(t, audio.LinkSampleRate, ts.Buffer.Rate)
		assert.InDelta(t, float64(10*time.Second), float64(ts.AnalogDuration), float64(5*time.Millisecond))
	})

	t.Run("Empty Speech Rejected", func(t *testing.T) {
		_, err := builder.Build(context.Background(), &audio.Buffer{Rate: 8000, Channels: 1}, nil, canonicalParams())
		assert.Error(t, err)
	})
}

func TestSplit(t *testing.T) {
	builder := NewBuilder(fakeCompressor{}, fakeModulator{})

	t.Run("Round Trip Recovers Boundaries", func(t *testing.T) {
		speech := audio.Tone(440, 10*time.Second, 8000, audio.LinkSampleRate)
		ts, err := builder.Build(context.Background(), speech, nil, canonicalParams())
		require.NoError(t, err)

		// An unimpaired capture of identical total duration.
		rx, err := Split(ts.Buffer, ts.ToneDuration)
		require.NoError(t, err)

		// Layout: coded samples begin at 4+10+1+1 = 16s.
		assert.Equal(t, 16*time.Second, rx.CodedStart)
		assert.Equal(t, 4*time.Second, rx.Tone.Duration())
		assert.Equal(t, 10*time.Second, rx.Analog.Duration())
		assert.Equal(t, 11*time.Second, rx.Coded.Duration())

		// The recovered tone window really is the tone: its peak matches
		// the setpoint and its first samples match the transmit stream's.
		assert.InDelta(t, 16384, rx.Tone.Peak(), 2)
		for i := 0; i < 100; i++ {
			if rx.Tone.Samples[i] != ts.Buffer.Samples[i] {
				t.Fatalf("Tone sample %d diverged: %d vs %d", i, rx.Tone.Samples[i], ts.Buffer.Samples[i])
			}
		}
	})

	t.Run("Round Trip Across Speech Lengths", func(t *testing.T) {
		for _, seconds := range []int{5, 10, 20} {
			speech := audio.Tone(440, time.Duration(seconds)*time.Second, 8000, audio.LinkSampleRate)
			ts, err := builder.Build(context.Background(), speech, nil, canonicalParams())
			require.NoError(t, err)

			rx, err := Split(ts.Buffer, ts.ToneDuration)
			require.NoError(t, err, "speech %ds", seconds)

			wantStart := ts.ToneDuration + ts.AnalogDuration + InterSegmentPad + CodedLeadPad
			assert.InDelta(t, float64(wantStart), float64(rx.CodedStart), float64(time.Millisecond),
				"coded start for %ds speech", seconds)
		}
	})

	t.Run("Short Capture Ambiguous", func(t *testing.T) {
		captured := audio.Silence(5*time.Second, audio.LinkSampleRate, 1)

		_, err := Split(captured, 4*time.Second)
		assert.ErrorIs(t, err, ErrAmbiguous)
	})

	t.Run("Capture Shorter Than Tone", func(t *testing.T) {
		captured := audio.Silence(2*time.Second, audio.LinkSampleRate, 1)

		_, err := Split(captured, 4*time.Second)
		assert.ErrorIs(t, err, ErrAmbiguous)
	})

	t.Run("No Negative Offsets Near Threshold", func(t *testing.T) {
		// Sweep durations just below the minimum: every one must fail
		// cleanly with ErrAmbiguous rather than panicking on a bad slice.
		for ms := 0; ms <= 8000; ms += 500 {
			captured := audio.Silence(time.Duration(ms)*time.Millisecond, audio.LinkSampleRate, 1)
			_, err := Split(captured, 4*time.Second)
			assert.ErrorIs(t, err, ErrAmbiguous, "duration %dms", ms)
		}
	})
}

func TestSplitToneIndependentOfLength(t *testing.T) {
	// The tone window is a fixed initial slice regardless of how long the
	// capture ran.
	builder := NewBuilder(fakeCompressor{}, fakeModulator{})
	speech := audio.Tone(440, 10*time.Second, 8000, audio.LinkSampleRate)
	ts, err := builder.Build(context.Background(), speech, nil, canonicalParams())
	require.NoError(t, err)

	// Simulate a recorder that kept going for a bit after the stream ended.
	tail := audio.Silence(2*time.Second, audio.LinkSampleRate, 1)
	long, err := audio.Concat(ts.Buffer, tail)
	require.NoError(t, err)

	rx, err := Split(long, ts.ToneDuration)
	require.NoError(t, err)
	assert.Equal(t, 4*time.Second, rx.Tone.Duration())

	// The derived coded start drifts by half the extra tail; it must still
	// land inside the lead pad so the coded window keeps its run-in.
	drift := rx.CodedStart - 16*time.Second
	assert.LessOrEqual(t, math.Abs(float64(drift)), float64(CodedLeadPad),
		"coded start drifted outside the lead pad")
}
