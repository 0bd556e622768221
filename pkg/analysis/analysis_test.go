package analysis

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmiw/radae-ota/pkg/audio"
)

func TestToneCNo(t *testing.T) {
	t.Run("Clean Tone Scores High", func(t *testing.T) {
		tone := audio.Tone(1000, 4*time.Second, 16384, audio.LinkSampleRate)

		cno, err := ToneCNo(tone, 1000)
		require.NoError(t, err)
		// A digitally clean tone should bury the quantization floor.
		assert.Greater(t, cno, 60.0)
	})

	t.Run("Noisy Tone Scores Lower", func(t *testing.T) {
		clean := audio.Tone(1000, 4*time.Second, 8000, audio.LinkSampleRate)
		cleanCNo, err := ToneCNo(clean, 1000)
		require.NoError(t, err)

		rng := rand.New(rand.NewSource(42))
		noisy := audio.Tone(1000, 4*time.Second, 8000, audio.LinkSampleRate)
		for i := range noisy.Samples {
			noisy.Samples[i] += int16(rng.Intn(4000) - 2000)
		}
		noisyCNo, err := ToneCNo(noisy, 1000)
		require.NoError(t, err)

		assert.Less(t, noisyCNo, cleanCNo)
	})

	t.Run("Silence Is Degenerate", func(t *testing.T) {
		silent := audio.Silence(4*time.Second, audio.LinkSampleRate, 1)
		_, err := ToneCNo(silent, 1000)
		assert.ErrorIs(t, err, audio.ErrDegenerateSignal)
	})

	t.Run("Short Window Rejected", func(t *testing.T) {
		tone := audio.Tone(1000, 100*time.Millisecond, 16384, audio.LinkSampleRate)
		_, err := ToneCNo(tone, 1000)
		assert.Error(t, err)
	})

	t.Run("Out Of Band Frequency Rejected", func(t *testing.T) {
		tone := audio.Tone(1000, 4*time.Second, 16384, audio.LinkSampleRate)
		_, err := ToneCNo(tone, 5000)
		assert.Error(t, err)
	})
}

func TestParseMetrics(t *testing.T) {
	t.Run("Typical Stream", func(t *testing.T) {
		text := `loading model...
frame 0 sync 0 snr -2.00
frame 1 sync 1 snr 6.50
frame 2 sync 1 snr 7.50
done
`
		metrics := ParseMetrics(text)
		require.Len(t, metrics, 3)
		assert.False(t, metrics[0].Sync)
		assert.True(t, metrics[1].Sync)
		assert.Equal(t, 6.5, metrics[1].SNRdB)
		assert.Equal(t, 2, metrics[2].Frame)
	})

	t.Run("Missing Frame Numbers", func(t *testing.T) {
		metrics := ParseMetrics("sync 1 snr 3.0\nsync 0 snr 1.0\n")
		require.Len(t, metrics, 2)
		assert.Equal(t, 0, metrics[0].Frame)
		assert.Equal(t, 1, metrics[1].Frame)
	})

	t.Run("Empty Input", func(t *testing.T) {
		assert.Empty(t, ParseMetrics(""))
		assert.Empty(t, ParseMetrics("nothing useful here\n"))
	})
}

func TestSummarize(t *testing.T) {
	metrics := []FrameMetric{
		{Frame: 0, Sync: false, SNRdB: -10},
		{Frame: 1, Sync: true, SNRdB: 6},
		{Frame: 2, Sync: true, SNRdB: 8},
		{Frame: 3, Sync: true, SNRdB: 10},
	}
	s := Summarize(metrics)
	assert.Equal(t, 4, s.Frames)
	assert.Equal(t, 0.75, s.SyncRatio)
	assert.Equal(t, 8.0, s.MeanSNRdB)

	empty := Summarize(nil)
	assert.Equal(t, 0, empty.Frames)
	assert.Equal(t, 0.0, empty.SyncRatio)
}

func TestWriteMetricsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.txt")
	metrics := []FrameMetric{
		{Sync: true, SNRdB: 6.25},
		{Sync: false, SNRdB: -1.5},
	}
	require.NoError(t, WriteMetricsFile(path, metrics))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1 6.25\n0 -1.50\n", string(data))
}
