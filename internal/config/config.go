package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConnectorType identifies which transport backend should be used.
type ConnectorType string

const (
	ConnectorHTTP   ConnectorType = "http"
	ConnectorSerial ConnectorType = "serial"

	DefaultSerialBaud     = 115200
	DefaultMaxRetries     = 3
	DefaultRetryDelayMS   = 1000
	DefaultPollIntervalMS = 1000
	DefaultPollTimeoutMS  = 5000
)

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `json:"level"`
	LogToFile bool   `json:"log_to_file"`
}

// ConnectionConfig contains connector-specific connection parameters.
type ConnectionConfig struct {
	Connector      ConnectorType `json:"connector"`
	Host           string        `json:"host"`
	UseTLS         bool          `json:"use_tls"`
	SerialPort     string        `json:"serial_port"`
	SerialBaud     int           `json:"serial_baud"`
	MaxRetries     int           `json:"max_retries"`
	RetryDelayMS   int           `json:"retry_delay_ms"`
	PollIntervalMS int           `json:"poll_interval_ms"`
	PollTimeoutMS  int           `json:"poll_timeout_ms"`
	BatchReads     bool          `json:"batch_reads"`
}

// AppConfig is the root persisted application configuration.
type AppConfig struct {
	Connection ConnectionConfig `json:"connection"`
	Logging    LoggingConfig    `json:"logging"`
}

func Default() AppConfig {
	return AppConfig{
		Connection: ConnectionConfig{
			Connector:      ConnectorHTTP,
			Host:           "",
			UseTLS:         false,
			SerialPort:     "",
			SerialBaud:     DefaultSerialBaud,
			MaxRetries:     DefaultMaxRetries,
			RetryDelayMS:   DefaultRetryDelayMS,
			PollIntervalMS: DefaultPollIntervalMS,
			PollTimeoutMS:  DefaultPollTimeoutMS,
			BatchReads:     true,
		},
		Logging: LoggingConfig{
			Level:     "info",
			LogToFile: false,
		},
	}
}

func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path is resolved by the caller and points to user config dir.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *AppConfig) FillMissingDefaults() {
	if c.Connection.Connector == "" {
		c.Connection.Connector = ConnectorHTTP
	}
	if c.Connection.SerialBaud <= 0 {
		c.Connection.SerialBaud = DefaultSerialBaud
	}
	if c.Connection.MaxRetries <= 0 {
		c.Connection.MaxRetries = DefaultMaxRetries
	}
	if c.Connection.RetryDelayMS <= 0 {
		c.Connection.RetryDelayMS = DefaultRetryDelayMS
	}
	if c.Connection.PollIntervalMS <= 0 {
		c.Connection.PollIntervalMS = DefaultPollIntervalMS
	}
	if c.Connection.PollTimeoutMS <= 0 {
		c.Connection.PollTimeoutMS = DefaultPollTimeoutMS
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c AppConfig) Validate() error {
	switch c.Connection.Connector {
	case ConnectorHTTP:
		if strings.TrimSpace(c.Connection.Host) == "" {
			return errors.New("http host is required")
		}
	case ConnectorSerial:
		if strings.TrimSpace(c.Connection.SerialPort) == "" {
			return errors.New("serial port is required")
		}
		if c.Connection.SerialBaud <= 0 {
			return errors.New("serial baud must be positive")
		}
	default:
		return fmt.Errorf("unknown connector: %s", c.Connection.Connector)
	}

	return nil
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}
