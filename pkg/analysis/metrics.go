package analysis

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// FrameMetric is one analysis frame of the demodulator's status stream.
type FrameMetric struct {
	Frame int
	Sync  bool
	SNRdB float64
}

// Summary condenses a metrics series for storage and reporting.
type Summary struct {
	Frames    int
	SyncRatio float64
	MeanSNRdB float64 // over synced frames only
}

// ParseMetrics extracts per-frame sync/SNR metrics from the demodulator's
// output. Lines look like:
//
//	frame 12 sync 1 snr 8.50
//
// Unrelated tool chatter is skipped.
func ParseMetrics(text string) []FrameMetric {
	var metrics []FrameMetric
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		m := FrameMetric{Frame: -1}
		seenSync, seenSNR := false, false
		for i := 0; i+1 < len(fields); i++ {
			switch fields[i] {
			case "frame":
				if v, err := strconv.Atoi(fields[i+1]); err == nil {
					m.Frame = v
				}
			case "sync":
				if v, err := strconv.Atoi(fields[i+1]); err == nil {
					m.Sync = v != 0
					seenSync = true
				}
			case "snr":
				if v, err := strconv.ParseFloat(fields[i+1], 64); err == nil {
					m.SNRdB = v
					seenSNR = true
				}
			}
		}
		if seenSync && seenSNR {
			if m.Frame < 0 {
				m.Frame = len(metrics)
			}
			metrics = append(metrics, m)
		}
	}
	return metrics
}

// Summarize reduces a series to its sync ratio and mean SNR over synced
// frames.
func Summarize(metrics []FrameMetric) Summary {
	s := Summary{Frames: len(metrics)}
	if len(metrics) == 0 {
		return s
	}
	synced := 0
	snrSum := 0.0
	for _, m := range metrics {
		if m.Sync {
			synced++
			snrSum += m.SNRdB
		}
	}
	s.SyncRatio = float64(synced) / float64(len(metrics))
	if synced > 0 {
		s.MeanSNRdB = snrSum / float64(synced)
	}
	return s
}

// WriteMetricsFile writes the plain-text metrics series consumed by the
// downstream plotting tools: one "sync snr" pair per analysis frame.
func WriteMetricsFile(path string, metrics []FrameMetric) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, m := range metrics {
		sync := 0
		if m.Sync {
			sync = 1
		}
		if _, err := fmt.Fprintf(w, "%d %.2f\n", sync, m.SNRdB); err != nil {
			return fmt.Errorf("failed to write metrics file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return f.Close()
}
