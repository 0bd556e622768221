package hardware

import (
	"context"
	"fmt"
	"sync"

	"github.com/tmiw/radae-ota/pkg/logging"
)

// ControllerState tracks where in the transmit sequence the controller is.
type ControllerState int

const (
	StateIdle ControllerState = iota
	StateModeSet
	StateFreqSet
	StateKeyed
	StateFaulted
)

func (s ControllerState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateModeSet:
		return "ModeSet"
	case StateFreqSet:
		return "FreqSet"
	case StateKeyed:
		return "Keyed"
	case StateFaulted:
		return "Faulted"
	default:
		return "Unknown"
	}
}

// Controller sequences mode, frequency and PTT against a radio for one
// transmission. A stuck-keyed transmitter is the one failure this code is
// not allowed to produce: once the radio is keyed, the unkey command runs
// on every exit path, exactly once.
//
// One controller per session; physical hardware has no concurrency.
type Controller struct {
	radio RadioInterface
	mutex sync.Mutex
	state ControllerState
}

// NewController creates a controller over an initialized radio.
func NewController(radio RadioInterface) *Controller {
	return &Controller{radio: radio, state: StateIdle}
}

// State returns the controller's current state.
func (c *Controller) State() ControllerState {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

// Transmit runs the full keyed sequence: set mode, set frequency, key PTT,
// invoke play, unkey. Control-channel failures before keying abort without
// ever keying. Once keyed, the unkey runs regardless of how play ends --
// success, playback error, or context cancellation -- and the first error
// encountered is returned.
func (c *Controller) Transmit(ctx context.Context, mode string, bandwidth int, freq int64, play func(context.Context) error) (err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.state != StateIdle {
		return fmt.Errorf("controller in state %s, not Idle", c.state)
	}

	if err := c.radio.SetMode(mode, bandwidth); err != nil {
		c.state = StateFaulted
		return fmt.Errorf("set mode %s: %w", mode, err)
	}
	c.state = StateModeSet

	if err := c.radio.SetFrequency(freq); err != nil {
		c.state = StateFaulted
		return fmt.Errorf("set frequency %d: %w", freq, err)
	}
	c.state = StateFreqSet

	if err := ctx.Err(); err != nil {
		c.state = StateIdle
		return err
	}

	if err := c.radio.SetPTT(true); err != nil {
		c.state = StateFaulted
		return fmt.Errorf("key PTT: %w", err)
	}
	c.state = StateKeyed

	// From here on the unkey is unconditional. Deferred so it runs even
	// when play panics, before the panic propagates.
	defer func() {
		if unkeyErr := c.radio.SetPTT(false); unkeyErr != nil {
			c.state = StateFaulted
			logging.Errorf("radio", "Failed to unkey transmitter: %v", unkeyErr)
			if err != nil {
				err = fmt.Errorf("playback failed (%v) and unkey failed: %w", err, unkeyErr)
			} else {
				err = fmt.Errorf("unkey PTT: %w", unkeyErr)
			}
			return
		}
		c.state = StateIdle
	}()

	return play(ctx)
}
