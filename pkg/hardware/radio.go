package hardware

import "errors"

// ErrControlChannel is returned when the radio control channel is
// unreachable or rejects a command.
var ErrControlChannel = errors.New("radio control channel error")

// RadioConfig represents radio control configuration.
type RadioConfig struct {
	Model    string // Radio model identifier passed to the control backend
	Endpoint string // Serial device path or host:port of a rigctld instance
	Enabled  bool   // Whether radio control is enabled at all
}

// RadioInterface defines the control operations the test session needs.
type RadioInterface interface {
	Initialize() error
	Close() error

	// Frequency control
	SetFrequency(freq int64) error
	GetFrequency() (int64, error)

	// Mode control
	SetMode(mode string, bandwidth int) error

	// PTT control
	SetPTT(state bool) error
	GetPTT() (bool, error)

	IsConnected() bool
}

// Sideband mode constants for the control channel.
const (
	ModeUSB = "USB"
	ModeLSB = "LSB"
)

// SSBBandwidth is the passband width in Hz requested alongside a sideband
// mode change.
const SSBBandwidth = 2700
