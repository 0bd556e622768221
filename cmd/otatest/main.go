package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tmiw/radae-ota/pkg/codec"
	"github.com/tmiw/radae-ota/pkg/config"
	"github.com/tmiw/radae-ota/pkg/hardware"
	"github.com/tmiw/radae-ota/pkg/logging"
	"github.com/tmiw/radae-ota/pkg/session"
	"github.com/tmiw/radae-ota/pkg/storage"
)

var (
	configPath   = flag.String("config", "config.yaml", "Configuration file path")
	device       = flag.String("d", "", "Audio output device (overrides config)")
	debug        = flag.Bool("v", false, "Enable debug logging")
	gain         = flag.Float64("g", 0, "Compressor gain in dB (overrides config)")
	stationID    = flag.String("i", "", "Station ID audio file prepended to the speech")
	radioModel   = flag.String("m", "", "Radio model (overrides config)")
	endpoint     = flag.String("e", "", "Radio control endpoint, serial device or host:port (overrides config)")
	peerPort     = flag.Int("p", 0, "Remote receiver control port (overrides config)")
	rxFile       = flag.String("r", "", "Analyze an existing capture file instead of transmitting")
	txOnly       = flag.Bool("t", false, "Transmit only, do not capture")
	generateOnly = flag.Bool("G", false, "Generate the transmit stream and stop")
	freqOffset   = flag.Int64("o", 0, "Transmit frequency offset in Hz (overrides config)")
	useRMS       = flag.Bool("rms", false, "Normalize to an RMS setpoint instead of peak")
	showVersion  = flag.Bool("version", false, "Show version information")
)

const (
	Version = "0.1.0-dev"
	Build   = "development"
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(),
		"Usage: otatest [flags] run <speech.raw> [peerHost]\n\nFlags:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("otatest version %s (%s)\n", Version, Build)
		os.Exit(0)
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	applyOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logging.InitGlobalLogger(cfg); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.CloseGlobalLogger()
	if *debug {
		logging.GetGlobalLogger().SetLevel(logging.LevelDebug)
	}

	logging.Infof("main", "otatest version %s starting", Version)

	if err := run(cfg); err != nil {
		logging.Errorf("main", "Session failed: %v", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file if present and falls back to defaults
// otherwise, so a bench setup can run on flags alone.
func loadConfig() (*config.Config, error) {
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.LoadConfig(*configPath)
}

func applyOverrides(cfg *config.Config) {
	if *device != "" {
		cfg.Audio.OutputDevice = *device
	}
	if *gain != 0 {
		cfg.Link.CompressorGain = *gain
	}
	if *radioModel != "" {
		cfg.Radio.Model = *radioModel
	}
	if *endpoint != "" {
		cfg.Radio.Endpoint = *endpoint
		cfg.Radio.Enabled = true
	}
	if *peerPort != 0 {
		cfg.Capture.PeerPort = *peerPort
	}
	if *freqOffset != 0 {
		cfg.Link.FrequencyOffset = *freqOffset
	}
	if *useRMS {
		cfg.Link.UseRMS = true
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logging.Infof("main", "Received %v, shutting down", sig)
		cancel()
	}()

	deps, cleanup, err := buildDeps(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	orch := session.New(cfg, deps)

	if *rxFile != "" {
		return orch.RunRxOnly(ctx, *rxFile, "")
	}

	args := flag.Args()
	if len(args) < 2 || args[0] != "run" {
		usage()
		return fmt.Errorf("expected: run <speech.raw> [peerHost]")
	}
	opts := session.Options{
		SpeechFile:    args[1],
		StationIDFile: *stationID,
		TxOnly:        *txOnly,
		GenerateOnly:  *generateOnly,
	}
	if len(args) > 2 {
		opts.PeerHost = args[2]
	} else if !opts.TxOnly && !opts.GenerateOnly {
		usage()
		return fmt.Errorf("peerHost is required unless -t or -G is given")
	}
	return orch.RunTxRx(ctx, opts)
}

// buildDeps wires the orchestrator's collaborators from configuration.
func buildDeps(cfg *config.Config) (session.Deps, func(), error) {
	deps := session.Deps{
		Output: hardware.NewExecPlayer(cfg.Audio.PlayCommand, cfg.Audio.OutputDevice),
		Compressor: &codec.Compressor{
			Command: cfg.Codec.CompressorCommand,
			Gain:    cfg.Link.CompressorGain,
		},
		Modulator:   &codec.Modulator{Command: cfg.Codec.ModulatorCommand},
		Demodulator: &codec.Demodulator{Command: cfg.Codec.DemodulatorCommand},
	}

	cleanup := func() {}

	if cfg.Radio.Enabled {
		if cfg.Radio.Model == "mock" {
			deps.Radio = hardware.NewMockRadio(radioConfig(cfg))
		} else {
			deps.Radio = hardware.NewRigctlRadio(radioConfig(cfg))
		}
	}

	if cfg.Storage.DatabasePath != "" && !*generateOnly {
		store, err := storage.NewSessionStore(cfg.Storage.DatabasePath, cfg.Storage.MaxSessions)
		if err != nil {
			return deps, cleanup, fmt.Errorf("session store: %w", err)
		}
		deps.Store = store
		cleanup = func() { store.Close() }
	}

	return deps, cleanup, nil
}

func radioConfig(cfg *config.Config) hardware.RadioConfig {
	return hardware.RadioConfig{
		Model:    cfg.Radio.Model,
		Endpoint: cfg.Radio.Endpoint,
		Enabled:  cfg.Radio.Enabled,
	}
}
