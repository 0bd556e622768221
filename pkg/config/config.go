package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config represents the OTA test harness configuration.
type Config struct {
	Radio struct {
		Enabled  bool    `yaml:"enabled"`
		Model    string  `yaml:"model"`
		Endpoint string  `yaml:"endpoint"` // serial device or host:port of rigctld
		Mode     string  `yaml:"mode"`     // USB or LSB
		TxDelay  float64 `yaml:"tx_delay"`
	} `yaml:"radio"`

	Audio struct {
		OutputDevice string `yaml:"output_device"`
		PlayCommand  string `yaml:"play_command"`
		SampleRate   int    `yaml:"sample_rate"`
	} `yaml:"audio"`

	Link struct {
		FrequencyHz     int64   `yaml:"frequency_hz"`
		FrequencyOffset int64   `yaml:"frequency_offset"`
		ToneFreq        float64 `yaml:"tone_freq"`
		ToneSeconds     float64 `yaml:"tone_seconds"`
		Setpoint        float64 `yaml:"setpoint"`
		UseRMS          bool    `yaml:"use_rms"`
		CompressorGain  float64 `yaml:"compressor_gain"`
	} `yaml:"link"`

	Capture struct {
		Command       string `yaml:"command"`
		PeerPort      int    `yaml:"peer_port"`
		DurationLimit int    `yaml:"duration_limit"` // seconds, hard wall-clock bound
		ReadyMarker   string `yaml:"ready_marker"`
		ReadyAttempts int    `yaml:"ready_attempts"`
		SettleSeconds int    `yaml:"settle_seconds"`
	} `yaml:"capture"`

	Codec struct {
		CompressorCommand  string `yaml:"compressor_command"`
		ModulatorCommand   string `yaml:"modulator_command"`
		DemodulatorCommand string `yaml:"demodulator_command"`
		PlotCommand        string `yaml:"plot_command"`
	} `yaml:"codec"`

	Artifacts struct {
		Directory string `yaml:"directory"`
	} `yaml:"artifacts"`

	Storage struct {
		DatabasePath string `yaml:"database_path"`
		MaxSessions  int    `yaml:"max_sessions"`
	} `yaml:"storage"`

	Report struct {
		Port        int    `yaml:"port"`
		BindAddress string `yaml:"bind_address"`
	} `yaml:"report"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		Console    bool   `yaml:"console"`
		MaxSize    int    `yaml:"max_size"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logging"`
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// Default returns a configuration with all defaults applied, for running
// without a config file.
func Default() *Config {
	var config Config
	config.ApplyDefaults()
	return &config
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Radio.Model == "" {
		c.Radio.Model = "dummy"
	}
	if c.Radio.Mode == "" {
		c.Radio.Mode = "USB"
	}
	if c.Radio.TxDelay == 0 {
		c.Radio.TxDelay = 0.2
	}
	if c.Audio.OutputDevice == "" {
		c.Audio.OutputDevice = "default"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 8000
	}
	if c.Link.FrequencyHz == 0 {
		c.Link.FrequencyHz = 14236000
	}
	if c.Link.ToneFreq == 0 {
		c.Link.ToneFreq = 1000
	}
	if c.Link.ToneSeconds == 0 {
		c.Link.ToneSeconds = 4
	}
	if c.Link.Setpoint == 0 {
		c.Link.Setpoint = 16384
	}
	if c.Link.CompressorGain == 0 {
		c.Link.CompressorGain = 6
	}
	if c.Capture.PeerPort == 0 {
		c.Capture.PeerPort = 8073
	}
	if c.Capture.DurationLimit == 0 {
		c.Capture.DurationLimit = 60
	}
	if c.Capture.ReadyMarker == "" {
		c.Capture.ReadyMarker = "Block:"
	}
	if c.Capture.ReadyAttempts == 0 {
		c.Capture.ReadyAttempts = 10
	}
	if c.Capture.SettleSeconds == 0 {
		c.Capture.SettleSeconds = 2
	}
	if c.Artifacts.Directory == "" {
		c.Artifacts.Directory = "./ota_artifacts"
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "./ota_sessions.db"
	}
	if c.Storage.MaxSessions == 0 {
		c.Storage.MaxSessions = 1000
	}
	if c.Report.Port == 0 {
		c.Report.Port = 8080
	}
	if c.Report.BindAddress == "" {
		c.Report.BindAddress = "0.0.0.0"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSize == 0 {
		c.Logging.MaxSize = 10
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
	if c.Logging.MaxAge == 0 {
		c.Logging.MaxAge = 30
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Radio.Enabled && c.Radio.Endpoint == "" {
		return fmt.Errorf("radio endpoint is required when radio control is enabled")
	}
	if c.Radio.Mode != "USB" && c.Radio.Mode != "LSB" {
		return fmt.Errorf("radio mode must be USB or LSB, got %q", c.Radio.Mode)
	}
	if c.Link.Setpoint < 0 || c.Link.Setpoint > 32767 {
		return fmt.Errorf("setpoint %g outside int16 range", c.Link.Setpoint)
	}
	if c.Link.Setpoint > 24576 {
		return fmt.Errorf("setpoint %g leaves too little headroom (max 24576)", c.Link.Setpoint)
	}
	if c.Capture.DurationLimit <= 0 {
		return fmt.Errorf("capture duration limit must be positive")
	}
	return nil
}
