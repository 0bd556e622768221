package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}
	return path
}

func testConfig(command string) Config {
	return Config{
		Command:       command,
		Host:          "test.local",
		Port:          8073,
		FrequencyHz:   14236000,
		Mode:          "usb",
		SampleRate:    8000,
		OutputPath:    "/tmp/unused.raw",
		DurationLimit: 30 * time.Second,
		ReadyMarker:   "Block:",
		ReadyAttempts: 5,
		ReadyInterval: 50 * time.Millisecond,
	}
}

// waitReaped polls until the session's process is gone.
func waitReaped(t *testing.T, s *Session) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for s.Running() {
		if time.Now().After(deadline) {
			t.Fatal("Recorder never reaped")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSupervisor(t *testing.T) {
	t.Run("Ready Then Stop", func(t *testing.T) {
		script := writeScript(t, "rec_ok.sh", `echo "Block: 1"
exec sleep 60`)
		s, err := Start(context.Background(), testConfig(script))
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		if err := s.AwaitReady(); err != nil {
			t.Fatalf("AwaitReady failed: %v", err)
		}

		if err := s.Stop(); err != nil {
			t.Fatalf("Stop failed: %v", err)
		}
		waitReaped(t, s)

		if s.Reason() != ReasonCompleted {
			t.Errorf("Expected completed, got %s", s.Reason())
		}
	})

	t.Run("Stop Is Idempotent", func(t *testing.T) {
		script := writeScript(t, "rec_idem.sh", `echo "Block: 1"
exec sleep 60`)
		s, err := Start(context.Background(), testConfig(script))
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		if err := s.Stop(); err != nil {
			t.Fatalf("First Stop failed: %v", err)
		}
		if err := s.Stop(); err != nil {
			t.Fatalf("Second Stop errored: %v", err)
		}
		waitReaped(t, s)
	})

	t.Run("Never Ready Connect Fails", func(t *testing.T) {
		script := writeScript(t, "rec_mute.sh", `exec sleep 60`)
		cfg := testConfig(script)
		cfg.ReadyAttempts = 3

		s, err := Start(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		err = s.AwaitReady()
		if !errors.Is(err, ErrConnectFailed) {
			t.Fatalf("Expected ErrConnectFailed, got: %v", err)
		}

		// The half-started process must not be left behind.
		waitReaped(t, s)
		if s.Reason() != ReasonConnectFailed {
			t.Errorf("Expected connect-failed, got %s", s.Reason())
		}

		// Stop after teardown is still a no-op.
		if err := s.Stop(); err != nil {
			t.Errorf("Stop after teardown errored: %v", err)
		}
	})

	t.Run("Recorder Dies Before Ready", func(t *testing.T) {
		script := writeScript(t, "rec_dead.sh", `exit 1`)
		s, err := Start(context.Background(), testConfig(script))
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		waitReaped(t, s)
		err = s.AwaitReady()
		if !errors.Is(err, ErrConnectFailed) {
			t.Fatalf("Expected ErrConnectFailed, got: %v", err)
		}
		if !strings.Contains(err.Error(), "exit status 1") {
			t.Errorf("Expected the recorder's exit status in the error, got: %v", err)
		}
		if s.Reason() != ReasonConnectFailed {
			t.Errorf("Expected connect-failed, got %s", s.Reason())
		}
	})

	t.Run("Interrupt Terminates", func(t *testing.T) {
		script := writeScript(t, "rec_int.sh", `echo "Block: 1"
exec sleep 60`)
		ctx, cancel := context.WithCancel(context.Background())
		s, err := Start(ctx, testConfig(script))
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if err := s.AwaitReady(); err != nil {
			t.Fatalf("AwaitReady failed: %v", err)
		}

		cancel()
		waitReaped(t, s)
		if s.Reason() != ReasonInterrupted {
			t.Errorf("Expected interrupted, got %s", s.Reason())
		}
	})

	t.Run("Duration Limit Enforced", func(t *testing.T) {
		script := writeScript(t, "rec_hung.sh", `echo "Block: 1"
exec sleep 60`)
		cfg := testConfig(script)
		cfg.DurationLimit = 200 * time.Millisecond

		s, err := Start(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		waitReaped(t, s)
		if s.Reason() != ReasonTimedOut {
			t.Errorf("Expected timed-out, got %s", s.Reason())
		}
	})

	t.Run("Command Substitution", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "args.txt")
		script := writeScript(t, "rec_args.sh", `echo "$@" > `+out+`
echo "Block: 1"`)
		cfg := testConfig(script + " {host} {port} {freq} {mode} {rate} {limit}")

		s, err := Start(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		waitReaped(t, s)

		data, err := os.ReadFile(out)
		if err != nil {
			t.Fatalf("Recorder never wrote args: %v", err)
		}
		want := "test.local 8073 14236000 usb 8000 30\n"
		if string(data) != want {
			t.Errorf("Expected args %q, got %q", want, string(data))
		}
	})
}
