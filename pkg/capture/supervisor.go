// Package capture launches and supervises the external receive-capture
// process. The recorder runs concurrently with the local transmission; the
// supervisor's job is to know when it is actually receiving samples, to
// bound its lifetime with a hard wall-clock limit, and to guarantee the
// process is terminated and reaped on every exit path.
package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/tmiw/radae-ota/pkg/logging"
)

// ErrConnectFailed is returned when the recorder never reports readiness
// within the retry budget.
var ErrConnectFailed = errors.New("capture source unreachable")

// Reason records why a capture session ended.
type Reason int

const (
	ReasonRunning Reason = iota
	ReasonCompleted
	ReasonTimedOut
	ReasonInterrupted
	ReasonConnectFailed
)

func (r Reason) String() string {
	switch r {
	case ReasonRunning:
		return "running"
	case ReasonCompleted:
		return "completed"
	case ReasonTimedOut:
		return "timed-out"
	case ReasonInterrupted:
		return "interrupted"
	case ReasonConnectFailed:
		return "connect-failed"
	default:
		return "unknown"
	}
}

// Config describes one capture run. The command template may reference
// {host}, {port}, {freq}, {mode}, {rate}, {out} and {limit}.
type Config struct {
	Command     string
	Host        string
	Port        int
	FrequencyHz int64
	Mode        string
	SampleRate  int
	OutputPath  string

	// DurationLimit is a hard upper bound on the recorder's lifetime,
	// independent of the test's own flow, protecting against a hung
	// remote source.
	DurationLimit time.Duration

	ReadyMarker   string
	ReadyAttempts int
	ReadyInterval time.Duration
}

// killGrace is how long Stop waits after SIGTERM before escalating to
// SIGKILL.
const killGrace = 5 * time.Second

// Session supervises one running recorder process.
type Session struct {
	cfg Config
	cmd *exec.Cmd

	mutex      sync.Mutex
	output     strings.Builder
	reason     Reason
	terminated bool

	done    chan struct{}
	waitErr error
	timer   *time.Timer
}

// Start launches the recorder in the background. The returned session must
// be stopped via Stop on every path; cancelling ctx also terminates it.
func Start(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.ReadyAttempts == 0 {
		cfg.ReadyAttempts = 10
	}
	if cfg.ReadyInterval == 0 {
		cfg.ReadyInterval = time.Second
	}

	line := cfg.Command
	for k, v := range map[string]string{
		"host":  cfg.Host,
		"port":  strconv.Itoa(cfg.Port),
		"freq":  strconv.FormatInt(cfg.FrequencyHz, 10),
		"mode":  cfg.Mode,
		"rate":  strconv.Itoa(cfg.SampleRate),
		"out":   cfg.OutputPath,
		"limit": strconv.Itoa(int(cfg.DurationLimit.Seconds())),
	} {
		line = strings.ReplaceAll(line, "{"+k+"}", v)
	}
	argv := strings.Fields(line)
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty capture command")
	}

	logging.Infof("capture", "Starting recorder: %s", strings.Join(argv, " "))

	cmd := exec.Command(argv[0], argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("recorder stdout: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	s := &Session{
		cfg:    cfg,
		cmd:    cmd,
		reason: ReasonRunning,
		done:   make(chan struct{}),
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start recorder %q: %w", argv[0], err)
	}

	go s.watchOutput(stdout)

	go func() {
		s.waitErr = cmd.Wait()
		s.mutex.Lock()
		if s.reason == ReasonRunning {
			s.reason = ReasonCompleted
		}
		s.mutex.Unlock()
		close(s.done)
	}()

	// Hard wall-clock bound, independent of the recorder honoring its own
	// --time-limit.
	if cfg.DurationLimit > 0 {
		s.timer = time.AfterFunc(cfg.DurationLimit, func() {
			logging.Warn("capture", "Recorder exceeded duration limit, terminating")
			s.terminate(ReasonTimedOut)
		})
	}

	// Asynchronous interrupt: tie the process lifetime to the context.
	go func() {
		select {
		case <-ctx.Done():
			s.terminate(ReasonInterrupted)
		case <-s.done:
		}
	}()

	return s, nil
}

// watchOutput collects recorder status lines for the readiness check.
func (s *Session) watchOutput(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		logging.Debugf("capture", "recorder: %s", line)
		s.mutex.Lock()
		s.output.WriteString(line)
		s.output.WriteByte('\n')
		s.mutex.Unlock()
	}
}

// sawMarker reports whether the readiness marker has appeared on the
// recorder's status output.
func (s *Session) sawMarker() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return strings.Contains(s.output.String(), s.cfg.ReadyMarker)
}

// Running reports whether the recorder process is still alive.
func (s *Session) Running() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Reason returns why the session ended (ReasonRunning while alive).
func (s *Session) Reason() Reason {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.reason
}

// OutputPath returns the file the recorder writes.
func (s *Session) OutputPath() string {
	return s.cfg.OutputPath
}

// AwaitReady polls the recorder's status output for the readiness marker,
// one bounded attempt per interval. If the budget is exhausted (or the
// recorder dies first) the half-started process is torn down and
// ErrConnectFailed returned.
func (s *Session) AwaitReady() error {
	for attempt := 1; attempt <= s.cfg.ReadyAttempts; attempt++ {
		if s.sawMarker() {
			logging.Infof("capture", "Recorder ready after %d attempt(s)", attempt)
			return nil
		}
		if !s.Running() {
			// done is closed, so waitErr is settled.
			s.setReason(ReasonConnectFailed)
			if s.waitErr != nil {
				return fmt.Errorf("recorder exited before becoming ready: %v: %w", s.waitErr, ErrConnectFailed)
			}
			return fmt.Errorf("recorder exited before becoming ready: %w", ErrConnectFailed)
		}
		logging.Debugf("capture", "Recorder not ready, attempt %d/%d", attempt, s.cfg.ReadyAttempts)
		time.Sleep(s.cfg.ReadyInterval)
	}

	s.terminate(ReasonConnectFailed)
	return fmt.Errorf("no readiness marker %q after %d attempts: %w",
		s.cfg.ReadyMarker, s.cfg.ReadyAttempts, ErrConnectFailed)
}

// setReason records a termination reason if none is set yet.
func (s *Session) setReason(r Reason) {
	s.mutex.Lock()
	if s.reason == ReasonRunning || s.reason == ReasonCompleted {
		s.reason = r
	}
	s.mutex.Unlock()
}

// terminate sends SIGTERM, escalates to SIGKILL after a grace period, and
// blocks until the process is reaped. Safe to call from any goroutine and
// any number of times; terminating an already-reaped process is a no-op.
func (s *Session) terminate(reason Reason) {
	s.mutex.Lock()
	if s.terminated {
		s.mutex.Unlock()
		<-s.done
		return
	}
	s.terminated = true
	if s.reason == ReasonRunning {
		s.reason = reason
	}
	s.mutex.Unlock()

	select {
	case <-s.done:
		// Already exited on its own; nothing to signal.
		return
	default:
	}

	logging.Debugf("capture", "Terminating recorder (%s)", reason)
	if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		logging.Debugf("capture", "SIGTERM failed (process likely gone): %v", err)
	}

	select {
	case <-s.done:
	case <-time.After(killGrace):
		logging.Warn("capture", "Recorder ignored SIGTERM, killing")
		s.cmd.Process.Kill()
		<-s.done
	}
}

// Stop terminates the recorder and blocks until it is reaped. Idempotent:
// stopping a finished or already-stopped session returns immediately.
func (s *Session) Stop() error {
	s.terminate(ReasonCompleted)
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.waitErr != nil {
		logging.Debugf("capture", "Recorder exit status: %v", s.waitErr)
	}
	logging.Infof("capture", "Recorder stopped (%s)", s.Reason())
	return nil
}
