package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tmiw/radae-ota/pkg/config"
	"github.com/tmiw/radae-ota/pkg/logging"
	"github.com/tmiw/radae-ota/pkg/storage"
)

var (
	configPath  = flag.String("config", "config.yaml", "Configuration file path")
	showVersion = flag.Bool("version", false, "Show version information")
)

const (
	Version = "0.1.0-dev"
	Build   = "development"
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("otareport version %s (%s)\n", Version, Build)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logging.InitGlobalLogger(cfg); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.CloseGlobalLogger()

	store, err := storage.NewSessionStore(cfg.Storage.DatabasePath, cfg.Storage.MaxSessions)
	if err != nil {
		logging.Errorf("main", "Failed to open session store: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	server := NewReportServer(cfg, store)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := server.Start(); err != nil {
		logging.Errorf("main", "Failed to start report server: %v", err)
		os.Exit(1)
	}
	logging.Infof("main", "otareport version %s listening on http://%s:%d",
		Version, cfg.Report.BindAddress, cfg.Report.Port)

	<-sigChan
	logging.Info("main", "Shutting down...")

	if err := server.Stop(); err != nil {
		logging.Errorf("main", "Error during shutdown: %v", err)
	}
	logging.Info("main", "otareport stopped")
}
