// Package session drives one over-the-air test from transmit stream
// construction through capture, re-segmentation and scoring.
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tmiw/radae-ota/pkg/analysis"
	"github.com/tmiw/radae-ota/pkg/audio"
	"github.com/tmiw/radae-ota/pkg/capture"
	"github.com/tmiw/radae-ota/pkg/config"
	"github.com/tmiw/radae-ota/pkg/hardware"
	"github.com/tmiw/radae-ota/pkg/logging"
	"github.com/tmiw/radae-ota/pkg/segment"
	"github.com/tmiw/radae-ota/pkg/storage"
)

// CodedDemodulator decodes a received coded segment and reports the
// per-frame metrics text alongside the decoded speech.
type CodedDemodulator interface {
	Demodulate(ctx context.Context, coded *audio.Buffer) (*audio.Buffer, string, error)
}

// Deps are the collaborators the orchestrator sequences. Store may be nil
// when result persistence is disabled.
type Deps struct {
	Radio       hardware.RadioInterface
	Output      hardware.AudioOutput
	Compressor  segment.AnalogCompressor
	Modulator   segment.CodedModulator
	Demodulator CodedDemodulator
	Store       *storage.SessionStore
}

// Options select what one session run does.
type Options struct {
	SpeechFile    string
	StationIDFile string
	PeerHost      string

	TxOnly       bool
	GenerateOnly bool

	// SessionName prefixes the artifact files; defaults to a timestamp.
	SessionName string
}

// Orchestrator composes the harness components into a single-shot test
// session.
type Orchestrator struct {
	cfg  *config.Config
	deps Deps
}

// New creates an orchestrator.
func New(cfg *config.Config, deps Deps) *Orchestrator {
	return &Orchestrator{cfg: cfg, deps: deps}
}

// artifactPath builds a session-scoped path under the artifacts directory.
func (o *Orchestrator) artifactPath(name, suffix string) string {
	return filepath.Join(o.cfg.Artifacts.Directory, name+"_"+suffix)
}

func (o *Orchestrator) powerMode() audio.NormalizeMode {
	if o.cfg.Link.UseRMS {
		return audio.NormalizeRMS
	}
	return audio.NormalizePeak
}

func (o *Orchestrator) buildParams() segment.BuildParams {
	return segment.BuildParams{
		ToneFreq:     o.cfg.Link.ToneFreq,
		ToneDuration: time.Duration(o.cfg.Link.ToneSeconds * float64(time.Second)),
		Setpoint:     o.cfg.Link.Setpoint,
		Mode:         o.powerMode(),
	}
}

// RunTxRx runs a live transmit-and-receive test session.
func (o *Orchestrator) RunTxRx(ctx context.Context, opts Options) error {
	if opts.SessionName == "" {
		opts.SessionName = time.Now().Format("20060102_150405")
	}
	if err := os.MkdirAll(o.cfg.Artifacts.Directory, 0755); err != nil {
		return fmt.Errorf("artifacts directory: %w", err)
	}

	speech, err := audio.ReadRawFile(opts.SpeechFile, o.cfg.Audio.SampleRate, 1)
	if err != nil {
		return fmt.Errorf("speech file: %w", err)
	}
	var stationID *audio.Buffer
	if opts.StationIDFile != "" {
		stationID, err = audio.ReadRawFile(opts.StationIDFile, o.cfg.Audio.SampleRate, 1)
		if err != nil {
			return fmt.Errorf("station ID file: %w", err)
		}
	}

	builder := segment.NewBuilder(o.deps.Compressor, o.deps.Modulator)
	stream, err := builder.Build(ctx, speech, stationID, o.buildParams())
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}

	txPath := o.artifactPath(opts.SessionName, "tx.raw")
	if err := audio.WriteRawFile(txPath, stream.Buffer); err != nil {
		return fmt.Errorf("build: %w", err)
	}
	logging.Infof("session", "Transmit stream written to %s (%v)", txPath,
		stream.Buffer.Duration().Round(time.Millisecond))

	if opts.GenerateOnly {
		return nil
	}

	capturePath := o.artifactPath(opts.SessionName, "rx.raw")
	var recorder *capture.Session
	if !opts.TxOnly {
		recorder, err = capture.Start(ctx, capture.Config{
			Command:       o.cfg.Capture.Command,
			Host:          opts.PeerHost,
			Port:          o.cfg.Capture.PeerPort,
			FrequencyHz:   o.txFrequency(),
			Mode:          strings.ToLower(o.cfg.Radio.Mode),
			SampleRate:    audio.LinkSampleRate,
			OutputPath:    capturePath,
			DurationLimit: time.Duration(o.cfg.Capture.DurationLimit) * time.Second,
			ReadyMarker:   o.cfg.Capture.ReadyMarker,
			ReadyAttempts: o.cfg.Capture.ReadyAttempts,
			ReadyInterval: time.Second,
		})
		if err != nil {
			return fmt.Errorf("capture: %w", err)
		}
		// The recorder is terminated and reaped on every exit path from
		// here on, including panics and interrupts.
		defer recorder.Stop()

		if err := recorder.AwaitReady(); err != nil {
			return fmt.Errorf("capture: %w", err)
		}
	}

	if err := o.transmit(ctx, stream.Buffer); err != nil {
		return err
	}

	if opts.TxOnly {
		logging.Info("session", "Transmit-only session complete")
		return nil
	}

	// Let the tail of the transmission land before tearing the recorder
	// down; the capture's own duration limit is much longer and is only a
	// backstop.
	settle := time.Duration(o.cfg.Capture.SettleSeconds) * time.Second
	logging.Infof("session", "Settling %v before stopping capture", settle)
	select {
	case <-time.After(settle):
	case <-ctx.Done():
	}
	recorder.Stop()

	if err := ctx.Err(); err != nil {
		return err
	}

	captured, err := audio.ReadRawFile(capturePath, audio.LinkSampleRate, 1)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	return o.analyze(ctx, captured, opts.SessionName, "txrx", txPath, capturePath, recorder.Reason().String())
}

// RunRxOnly analyzes a previously captured file without touching the radio.
func (o *Orchestrator) RunRxOnly(ctx context.Context, capturePath, sessionName string) error {
	if sessionName == "" {
		sessionName = time.Now().Format("20060102_150405")
	}
	if err := os.MkdirAll(o.cfg.Artifacts.Directory, 0755); err != nil {
		return fmt.Errorf("artifacts directory: %w", err)
	}

	captured, err := audio.ReadRawFile(capturePath, audio.LinkSampleRate, 1)
	if err != nil {
		return fmt.Errorf("capture file: %w", err)
	}
	return o.analyze(ctx, captured, sessionName, "rxonly", "", capturePath, capture.ReasonCompleted.String())
}

// txFrequency is the dial frequency including the configured offset.
func (o *Orchestrator) txFrequency() int64 {
	return o.cfg.Link.FrequencyHz + o.cfg.Link.FrequencyOffset
}

// transmit keys the radio (when enabled) and plays the stream. The
// controller guarantees the unkey on every exit path.
func (o *Orchestrator) transmit(ctx context.Context, stream *audio.Buffer) error {
	play := func(ctx context.Context) error {
		// Give the transmitter a moment to settle on key before audio.
		delay := time.Duration(o.cfg.Radio.TxDelay * float64(time.Second))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		return o.deps.Output.Play(ctx, stream)
	}

	if o.deps.Radio == nil {
		logging.Info("session", "Radio control disabled, playing without keying")
		return play(ctx)
	}

	if err := o.deps.Radio.Initialize(); err != nil {
		return fmt.Errorf("radio: %w", err)
	}
	defer o.deps.Radio.Close()

	ctrl := hardware.NewController(o.deps.Radio)
	if err := ctrl.Transmit(ctx, o.cfg.Radio.Mode, hardware.SSBBandwidth, o.txFrequency(), play); err != nil {
		return fmt.Errorf("radio: %w", err)
	}
	return nil
}

// analyze is the shared receive-side tail: split the capture, decode the
// coded segment, score both, persist artifacts and the session record.
func (o *Orchestrator) analyze(ctx context.Context, captured *audio.Buffer, name, mode, txPath, capturePath, termination string) error {
	toneDuration := time.Duration(o.cfg.Link.ToneSeconds * float64(time.Second))
	rx, err := segment.Split(captured, toneDuration)
	if err != nil {
		return fmt.Errorf("segment: %w", err)
	}

	tonePath := o.artifactPath(name, "rx_tone.raw")
	analogPath := o.artifactPath(name, "rx_analog.raw")
	codedPath := o.artifactPath(name, "rx_coded.raw")
	for _, a := range []struct {
		path string
		buf  *audio.Buffer
	}{{tonePath, rx.Tone}, {analogPath, rx.Analog}, {codedPath, rx.Coded}} {
		if err := audio.WriteRawFile(a.path, a.buf); err != nil {
			return fmt.Errorf("segment: %w", err)
		}
	}

	decoded, metricsText, err := o.deps.Demodulator.Demodulate(ctx, rx.Coded)
	if err != nil {
		return fmt.Errorf("demodulate: %w", err)
	}
	decodedPath := o.artifactPath(name, "rx_decoded.raw")
	if err := audio.WriteRawFile(decodedPath, decoded); err != nil {
		return fmt.Errorf("demodulate: %w", err)
	}

	metrics := analysis.ParseMetrics(metricsText)
	metricsPath := o.artifactPath(name, "metrics.txt")
	if err := analysis.WriteMetricsFile(metricsPath, metrics); err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	summary := analysis.Summarize(metrics)

	cno, err := analysis.ToneCNo(rx.Tone, o.cfg.Link.ToneFreq)
	if err != nil {
		logging.Warnf("analysis", "C/No estimate unavailable: %v", err)
		cno = 0
	}

	o.plot(ctx, capturePath, analogPath, decodedPath)

	logging.Infof("session", "Results: C/No %.1f dB-Hz, sync %.0f%%, mean SNR %.1f dB over %d frames",
		cno, summary.SyncRatio*100, summary.MeanSNRdB, summary.Frames)

	if o.deps.Store != nil {
		rec := &storage.SessionRecord{
			StartedAt:   time.Now().UTC(),
			Mode:        mode,
			FrequencyHz: o.txFrequency(),
			PowerMode:   o.powerMode().String(),
			Setpoint:    o.cfg.Link.Setpoint,
			TxPath:      txPath,
			CapturePath: capturePath,
			DecodedPath: decodedPath,
			MetricsPath: metricsPath,
			CNoDBHz:     cno,
			SyncRatio:   summary.SyncRatio,
			MeanSNRdB:   summary.MeanSNRdB,
			Termination: termination,
		}
		if _, err := o.deps.Store.SaveSession(rec, metrics); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}
	return nil
}

// plot invokes the external spectrogram script per artifact. Plotting is a
// convenience for humans; failures are logged, never fatal.
func (o *Orchestrator) plot(ctx context.Context, paths ...string) {
	if o.cfg.Codec.PlotCommand == "" {
		return
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		argv := strings.Fields(strings.ReplaceAll(o.cfg.Codec.PlotCommand, "{in}", p))
		if len(argv) == 0 {
			return
		}
		if err := runPlot(ctx, argv); err != nil {
			logging.Warnf("session", "Spectrogram for %s failed: %v", p, err)
		}
	}
}
