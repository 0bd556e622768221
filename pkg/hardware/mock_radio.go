package hardware

import (
	"fmt"
	"sync"

	"github.com/tmiw/radae-ota/pkg/logging"
)

// MockRadio implements RadioInterface for testing. Individual operations
// can be made to fail to exercise fault paths.
type MockRadio struct {
	config RadioConfig
	mutex  sync.RWMutex

	// Mock state
	connected bool
	frequency int64
	mode      string
	bandwidth int
	ptt       bool

	// Fault injection
	FailSetMode      bool
	FailSetFrequency bool
	FailSetPTT       bool

	// Operation log for assertions
	PTTHistory []bool
}

// NewMockRadio creates a new mock radio interface.
func NewMockRadio(config RadioConfig) *MockRadio {
	return &MockRadio{
		config:    config,
		frequency: 14236000,
		mode:      ModeUSB,
		bandwidth: SSBBandwidth,
	}
}

// Initialize initializes the mock radio.
func (r *MockRadio) Initialize() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	logging.Debugf("radio", "MockRadio: connecting (model %s, endpoint %s)", r.config.Model, r.config.Endpoint)
	r.connected = true
	return nil
}

// Close closes the mock radio connection.
func (r *MockRadio) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.connected = false
	return nil
}

// SetFrequency sets the mock radio frequency.
func (r *MockRadio) SetFrequency(freq int64) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.connected {
		return fmt.Errorf("radio not connected: %w", ErrControlChannel)
	}
	if r.FailSetFrequency {
		return fmt.Errorf("mock frequency command rejected: %w", ErrControlChannel)
	}
	r.frequency = freq
	return nil
}

// GetFrequency gets the mock radio frequency.
func (r *MockRadio) GetFrequency() (int64, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if !r.connected {
		return 0, fmt.Errorf("radio not connected: %w", ErrControlChannel)
	}
	return r.frequency, nil
}

// SetMode sets the mock radio mode.
func (r *MockRadio) SetMode(mode string, bandwidth int) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.connected {
		return fmt.Errorf("radio not connected: %w", ErrControlChannel)
	}
	if r.FailSetMode {
		return fmt.Errorf("mock mode command rejected: %w", ErrControlChannel)
	}
	r.mode = mode
	r.bandwidth = bandwidth
	return nil
}

// Mode returns the last mode set, for test assertions.
func (r *MockRadio) Mode() string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.mode
}

// SetPTT sets the mock PTT state.
func (r *MockRadio) SetPTT(state bool) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.connected {
		return fmt.Errorf("radio not connected: %w", ErrControlChannel)
	}
	if r.FailSetPTT && state {
		return fmt.Errorf("mock PTT command rejected: %w", ErrControlChannel)
	}
	r.ptt = state
	r.PTTHistory = append(r.PTTHistory, state)
	return nil
}

// GetPTT gets the mock PTT state.
func (r *MockRadio) GetPTT() (bool, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if !r.connected {
		return false, fmt.Errorf("radio not connected: %w", ErrControlChannel)
	}
	return r.ptt, nil
}

// IsConnected returns mock connection state.
func (r *MockRadio) IsConnected() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.connected
}
