package hardware

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tmiw/radae-ota/pkg/logging"
)

// RigctlRadio implements RadioInterface over the rigctld text protocol.
// The endpoint is either a host:port (network rigctld) or a serial device
// path carrying the same command set. Commands are single letters with
// space-separated arguments; each command is acknowledged with an
// "RPRT <code>" line, code 0 meaning success.
type RigctlRadio struct {
	config RadioConfig
	mutex  sync.Mutex

	conn      io.ReadWriteCloser
	reader    *bufio.Reader
	connected bool
}

// commandTimeout bounds a single control-channel exchange.
const commandTimeout = 5 * time.Second

// NewRigctlRadio creates a radio backed by a rigctld-style control channel.
func NewRigctlRadio(config RadioConfig) *RigctlRadio {
	return &RigctlRadio{config: config}
}

// Initialize opens the control channel.
func (r *RigctlRadio) Initialize() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.connected {
		return nil
	}

	logging.Infof("radio", "Opening control channel %s (model %s)", r.config.Endpoint, r.config.Model)

	var conn io.ReadWriteCloser
	if strings.Contains(r.config.Endpoint, ":") {
		c, err := net.DialTimeout("tcp", r.config.Endpoint, commandTimeout)
		if err != nil {
			return fmt.Errorf("failed to reach rigctld at %s: %v: %w", r.config.Endpoint, err, ErrControlChannel)
		}
		conn = c
	} else {
		f, err := os.OpenFile(r.config.Endpoint, os.O_RDWR, 0)
		if err != nil {
			return fmt.Errorf("failed to open control device %s: %v: %w", r.config.Endpoint, err, ErrControlChannel)
		}
		conn = f
	}

	r.conn = conn
	r.reader = bufio.NewReader(conn)
	r.connected = true
	return nil
}

// Close closes the control channel.
func (r *RigctlRadio) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.connected {
		return nil
	}
	r.connected = false
	err := r.conn.Close()
	r.conn = nil
	r.reader = nil
	return err
}

// send writes one command line and checks the RPRT acknowledgment. Must be
// called with the mutex held.
func (r *RigctlRadio) send(cmd string) error {
	if !r.connected {
		return fmt.Errorf("control channel not open: %w", ErrControlChannel)
	}

	if c, ok := r.conn.(net.Conn); ok {
		c.SetDeadline(time.Now().Add(commandTimeout))
	}

	logging.Debugf("radio", "-> %s", cmd)
	if _, err := fmt.Fprintf(r.conn, "%s\n", cmd); err != nil {
		return fmt.Errorf("control write failed: %v: %w", err, ErrControlChannel)
	}

	line, err := r.reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("control read failed: %v: %w", err, ErrControlChannel)
	}
	line = strings.TrimSpace(line)
	logging.Debugf("radio", "<- %s", line)

	if !strings.HasPrefix(line, "RPRT ") {
		return fmt.Errorf("unexpected control response %q: %w", line, ErrControlChannel)
	}
	code, err := strconv.Atoi(strings.TrimPrefix(line, "RPRT "))
	if err != nil {
		return fmt.Errorf("malformed control response %q: %w", line, ErrControlChannel)
	}
	if code != 0 {
		return fmt.Errorf("command %q rejected with code %d: %w", cmd, code, ErrControlChannel)
	}
	return nil
}

// query writes one command line and reads value lines until the RPRT
// trailer. Must be called with the mutex held.
func (r *RigctlRadio) query(cmd string, values int) ([]string, error) {
	if !r.connected {
		return nil, fmt.Errorf("control channel not open: %w", ErrControlChannel)
	}

	if c, ok := r.conn.(net.Conn); ok {
		c.SetDeadline(time.Now().Add(commandTimeout))
	}

	if _, err := fmt.Fprintf(r.conn, "%s\n", cmd); err != nil {
		return nil, fmt.Errorf("control write failed: %v: %w", err, ErrControlChannel)
	}

	results := make([]string, 0, values)
	for i := 0; i < values; i++ {
		line, err := r.reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("control read failed: %v: %w", err, ErrControlChannel)
		}
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "RPRT ") {
			return nil, fmt.Errorf("command %q rejected: %s: %w", cmd, line, ErrControlChannel)
		}
		results = append(results, line)
	}
	return results, nil
}

// SetFrequency sets the radio frequency in Hz.
func (r *RigctlRadio) SetFrequency(freq int64) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	logging.Infof("radio", "Setting frequency to %d Hz (%.3f MHz)", freq, float64(freq)/1e6)
	return r.send(fmt.Sprintf("F %d", freq))
}

// GetFrequency reads the current frequency in Hz.
func (r *RigctlRadio) GetFrequency() (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	lines, err := r.query("f", 1)
	if err != nil {
		return 0, err
	}
	freq, err := strconv.ParseInt(lines[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed frequency %q: %w", lines[0], ErrControlChannel)
	}
	return freq, nil
}

// SetMode sets the sideband mode and passband width.
func (r *RigctlRadio) SetMode(mode string, bandwidth int) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	logging.Infof("radio", "Setting mode to %s, passband %d Hz", mode, bandwidth)
	return r.send(fmt.Sprintf("M %s %d", mode, bandwidth))
}

// SetPTT keys or unkeys the transmitter.
func (r *RigctlRadio) SetPTT(state bool) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	v := 0
	if state {
		v = 1
		logging.Info("radio", "PTT ON")
	} else {
		logging.Info("radio", "PTT OFF")
	}
	return r.send(fmt.Sprintf("T %d", v))
}

// GetPTT reads the current PTT state.
func (r *RigctlRadio) GetPTT() (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	lines, err := r.query("t", 1)
	if err != nil {
		return false, err
	}
	return lines[0] == "1", nil
}

// IsConnected reports whether the control channel is open.
func (r *RigctlRadio) IsConnected() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.connected
}
