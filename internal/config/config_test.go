package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAppConfigFillMissingDefaults(t *testing.T) {
	cfg := AppConfig{}
	cfg.FillMissingDefaults()

	if cfg.Connection.Connector != ConnectorHTTP {
		t.Fatalf("expected default connector %q, got %q", ConnectorHTTP, cfg.Connection.Connector)
	}
	if cfg.Connection.MaxRetries != DefaultMaxRetries {
		t.Fatalf("expected default max retries %d, got %d", DefaultMaxRetries, cfg.Connection.MaxRetries)
	}
	if cfg.Connection.RetryDelayMS != DefaultRetryDelayMS {
		t.Fatalf("expected default retry delay %d, got %d", DefaultRetryDelayMS, cfg.Connection.RetryDelayMS)
	}
	if cfg.Connection.PollIntervalMS != DefaultPollIntervalMS {
		t.Fatalf("expected default poll interval %d, got %d", DefaultPollIntervalMS, cfg.Connection.PollIntervalMS)
	}
	if cfg.Connection.PollTimeoutMS != DefaultPollTimeoutMS {
		t.Fatalf("expected default poll timeout %d, got %d", DefaultPollTimeoutMS, cfg.Connection.PollTimeoutMS)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.Logging.Level)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Connection.Connector != ConnectorHTTP {
		t.Fatalf("expected defaults for missing file, got %+v", cfg)
	}
	if !cfg.Connection.BatchReads {
		t.Fatalf("expected batch reads enabled by default")
	}
}

func TestLoadPartialConfigFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
  "connection": {
    "connector": "http",
    "host": "meshtastic.local",
    "use_tls": true
  }
}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Connection.Host != "meshtastic.local" {
		t.Fatalf("expected host preserved, got %q", cfg.Connection.Host)
	}
	if !cfg.Connection.UseTLS {
		t.Fatalf("expected TLS enabled")
	}
	if cfg.Connection.PollTimeoutMS != DefaultPollTimeoutMS {
		t.Fatalf("expected default poll timeout, got %d", cfg.Connection.PollTimeoutMS)
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestValidateRequiresConnectorTarget(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for empty http host")
	}

	cfg.Connection.Host = "localhost:8080"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate http config: %v", err)
	}

	cfg.Connection.Connector = ConnectorSerial
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for empty serial port")
	}

	cfg.Connection.SerialPort = "/dev/ttyUSB0"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate serial config: %v", err)
	}

	cfg.Connection.Connector = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown connector")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Connection.Host = "localhost:8080"
	cfg.Connection.PollIntervalMS = 250

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Connection.Host != "localhost:8080" || loaded.Connection.PollIntervalMS != 250 {
		t.Fatalf("round trip mismatch: %+v", loaded.Connection)
	}
}
