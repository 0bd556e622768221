// Package segment builds the multi-segment transmit stream and re-derives
// the segment boundaries from a received capture.
package segment

import (
	"time"

	"github.com/tmiw/radae-ota/pkg/audio"
)

// Role identifies what a segment carries.
type Role int

const (
	RoleTone Role = iota
	RoleAnalogReference
	RoleCodedSignal
	RolePadding
)

func (r Role) String() string {
	switch r {
	case RoleTone:
		return "tone"
	case RoleAnalogReference:
		return "analog"
	case RoleCodedSignal:
		return "coded"
	case RolePadding:
		return "padding"
	default:
		return "unknown"
	}
}

// Segment is one named slice of the transmit stream.
type Segment struct {
	Role   Role
	Buffer *audio.Buffer
}

// TransmitStream is the single buffer sent to air plus the layout it was
// built from. The layout durations are what the receive side's splitter
// arithmetic is calibrated against.
type TransmitStream struct {
	Buffer   *audio.Buffer
	Segments []Segment

	ToneDuration   time.Duration
	AnalogDuration time.Duration
	CodedDuration  time.Duration
}

// Fixed layout constants. Changing these changes the splitter arithmetic
// below; see the derivation in Split.
const (
	// InterSegmentPad separates the analog reference from the coded block.
	InterSegmentPad = time.Second
	// CodedLeadPad is the silence prepended to the coded signal so the
	// demodulator sees a quiet run-in.
	CodedLeadPad = time.Second
)
