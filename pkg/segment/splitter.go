package segment

import (
	"errors"
	"fmt"
	"time"

	"github.com/tmiw/radae-ota/pkg/audio"
	"github.com/tmiw/radae-ota/pkg/logging"
)

// ErrAmbiguous is returned when a capture is too short (or the derived
// offsets land out of range) for the segment boundaries to be recovered.
var ErrAmbiguous = errors.New("captured duration too short to derive segment boundaries")

// Splitter arithmetic constants. With the build layout
//
//	tone(T) + analog(S) + pad(1) + leadPad(1) + coded(S+1)
//
// the coded samples start at T+S+2 and the total is T+2S+3. Solving for
// the start from the total alone:
//
//	start = (total - 1s)/2 + T/2 + 1s
//
// which for the canonical 4 s tone gives (total - trailingPad)/2 +
// fixedOffset with trailingPad = 1 s and fixedOffset = 3 s.
// The arithmetic assumes the analog and coded halves stay near the
// build-time ratio (coded = analog + 1 s); the bounds checks below catch
// captures where that assumption is visibly broken instead of slicing
// garbage.
const (
	trailingPad = time.Second
	fixedOffset = 3 * time.Second
)

// minReferenceWindow is the smallest analog or coded window worth handing
// to an analyzer.
const minReferenceWindow = time.Second

// RxSegments holds the three recovered sub-segments of a capture.
type RxSegments struct {
	Tone   *audio.Buffer
	Analog *audio.Buffer
	Coded  *audio.Buffer

	CodedStart time.Duration
}

// Split re-derives the tone, analog and coded segments from a captured
// stream using the known tone duration and the duration arithmetic above.
func Split(captured *audio.Buffer, toneDuration time.Duration) (*RxSegments, error) {
	total := captured.Duration()

	minTotal := toneDuration + InterSegmentPad + CodedLeadPad + 2*minReferenceWindow
	if total < minTotal {
		return nil, fmt.Errorf("capture is %v, need at least %v: %w", total.Round(time.Millisecond), minTotal, ErrAmbiguous)
	}

	codedStart := (total-trailingPad)/2 + fixedOffset
	analogEnd := codedStart - InterSegmentPad - CodedLeadPad

	// Bounds validation of the derived offsets: the analog window must sit
	// strictly between the tone and the coded block, and the coded window
	// must be non-degenerate.
	if analogEnd < toneDuration+minReferenceWindow {
		return nil, fmt.Errorf("derived analog window [%v, %v) too short: %w", toneDuration, analogEnd, ErrAmbiguous)
	}
	if codedStart > total-minReferenceWindow {
		return nil, fmt.Errorf("derived coded start %v leaves no coded window in %v: %w", codedStart, total, ErrAmbiguous)
	}

	tone, err := captured.Slice(0, toneDuration)
	if err != nil {
		return nil, fmt.Errorf("tone window: %w", ErrAmbiguous)
	}
	analog, err := captured.Slice(toneDuration, analogEnd)
	if err != nil {
		return nil, fmt.Errorf("analog window: %w", ErrAmbiguous)
	}
	coded, err := captured.Slice(codedStart, total)
	if err != nil {
		return nil, fmt.Errorf("coded window: %w", ErrAmbiguous)
	}

	logging.Infof("segment", "Split %v capture: tone [0, %v), analog [%v, %v), coded [%v, %v)",
		total.Round(time.Millisecond), toneDuration, toneDuration, analogEnd.Round(time.Millisecond),
		codedStart.Round(time.Millisecond), total.Round(time.Millisecond))

	return &RxSegments{
		Tone:       tone,
		Analog:     analog,
		Coded:      coded,
		CodedStart: codedStart,
	}, nil
}
