package hardware

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/tmiw/radae-ota/pkg/audio"
	"github.com/tmiw/radae-ota/pkg/logging"
)

// ErrPlaybackFailed is returned when the audio output path fails to play
// the transmit stream.
var ErrPlaybackFailed = errors.New("audio playback failed")

// AudioOutput plays a buffer to the transmit audio device, blocking until
// the device has drained or the context is cancelled.
type AudioOutput interface {
	Play(ctx context.Context, b *audio.Buffer) error
}

// ExecPlayer plays audio by piping raw samples into an external player
// command (aplay or compatible). The command template gets the sample rate
// substituted for {rate} and the device for {device}.
type ExecPlayer struct {
	Command string
	Device  string
}

// defaultPlayCommand plays S16LE mono from stdin.
const defaultPlayCommand = "aplay -f S16_LE -c 1 -r {rate} -D {device} -q"

// NewExecPlayer creates a player for the given output device. An empty
// command uses the aplay default.
func NewExecPlayer(command, device string) *ExecPlayer {
	if command == "" {
		command = defaultPlayCommand
	}
	if device == "" {
		device = "default"
	}
	return &ExecPlayer{Command: command, Device: device}
}

// Play pipes the buffer to the player process and waits for it to exit.
func (p *ExecPlayer) Play(ctx context.Context, b *audio.Buffer) error {
	cmdline := strings.ReplaceAll(p.Command, "{rate}", strconv.Itoa(b.Rate))
	cmdline = strings.ReplaceAll(cmdline, "{device}", p.Device)
	parts := strings.Fields(cmdline)
	if len(parts) == 0 {
		return fmt.Errorf("empty player command: %w", ErrPlaybackFailed)
	}

	logging.Infof("audio", "Playing %v of audio via %q", b.Duration().Round(time.Millisecond), parts[0])

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("player stdin: %v: %w", err, ErrPlaybackFailed)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start player %q: %v: %w", parts[0], err, ErrPlaybackFailed)
	}

	writeErr := audio.WriteRaw(stdin, b)
	stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("player exited with error: %v: %w", err, ErrPlaybackFailed)
	}
	if writeErr != nil {
		return fmt.Errorf("failed to feed player: %v: %w", writeErr, ErrPlaybackFailed)
	}
	return nil
}

// MockOutput records played buffers for tests and can simulate failure.
type MockOutput struct {
	Played []*audio.Buffer
	Fail   bool
}

// Play records the buffer or fails if configured to.
func (m *MockOutput) Play(ctx context.Context, b *audio.Buffer) error {
	if m.Fail {
		return fmt.Errorf("mock output device error: %w", ErrPlaybackFailed)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Played = append(m.Played, b)
	return nil
}
