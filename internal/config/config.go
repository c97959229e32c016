package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for the server and the
// terminal runner. It merges file defaults and environment overrides so the
// same binary works for local and deployed runs.
type Config struct {
	Port     string
	DBDSN    string
	LogFile  string
	SeedDemo bool

	HubSendBuffer  int
	SessionTimeout time.Duration

	Terminal TerminalConfig
}

// TerminalConfig drives the client-side queue, reconciler, and monitor.
type TerminalConfig struct {
	ServerURL string
	ID        string
	Key       string
	QueueDSN  string
	LocalAddr string

	ProbeInterval time.Duration
	FailThreshold int
	OKThreshold   int

	MaxAttempts   int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	SubmitTimeout time.Duration
}

// configFile mirrors the YAML schema. Kept separate from Config so
// runtime-only defaults stay internal.
type configFile struct {
	Server struct {
		Port              string `yaml:"port"`
		DBDSN             string `yaml:"db_dsn"`
		LogFile           string `yaml:"log_file"`
		SeedDemo          *bool  `yaml:"seed_demo"`
		HubSendBuffer     int    `yaml:"hub_send_buffer"`
		SessionTimeoutSec int    `yaml:"session_timeout_seconds"`
	} `yaml:"server"`
	Terminal struct {
		ServerURL        string `yaml:"server_url"`
		ID               string `yaml:"id"`
		Key              string `yaml:"key"`
		QueueDSN         string `yaml:"queue_dsn"`
		LocalAddr        string `yaml:"local_addr"`
		ProbeIntervalSec int    `yaml:"probe_interval_seconds"`
		FailThreshold    int    `yaml:"fail_threshold"`
		OKThreshold      int    `yaml:"ok_threshold"`
		MaxAttempts      int    `yaml:"max_attempts"`
		BaseBackoffMs    int    `yaml:"base_backoff_ms"`
		MaxBackoffMs     int    `yaml:"max_backoff_ms"`
		SubmitTimeoutSec int    `yaml:"submit_timeout_seconds"`
	} `yaml:"terminal"`
}

func Load() Config {
	cfg := Config{
		Port:           "8081",
		DBDSN:          "tillsync.db",
		LogFile:        "./tillsync.log",
		SeedDemo:       true,
		HubSendBuffer:  64,
		SessionTimeout: 60 * time.Second,
		Terminal: TerminalConfig{
			ServerURL:     "http://localhost:8081",
			ID:            "till-1",
			Key:           "",
			QueueDSN:      "tillsync-queue.db",
			LocalAddr:     "127.0.0.1:8091",
			ProbeInterval: 5 * time.Second,
			FailThreshold: 2,
			OKThreshold:   2,
			MaxAttempts:   5,
			BaseBackoff:   500 * time.Millisecond,
			MaxBackoff:    30 * time.Second,
			SubmitTimeout: 10 * time.Second,
		},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := mergeFile(&cfg, path); err != nil {
			log.Printf("[warn] could not load config file %s: %v", path, err)
		}
	}

	// Env overrides win over file values.
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DBDSN = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("SEED_DEMO"); v != "" {
		cfg.SeedDemo = v == "1" || v == "true"
	}
	if v := os.Getenv("SERVER_URL"); v != "" {
		cfg.Terminal.ServerURL = v
	}
	if v := os.Getenv("TERMINAL_ID"); v != "" {
		cfg.Terminal.ID = v
	}
	if v := os.Getenv("TERMINAL_KEY"); v != "" {
		cfg.Terminal.Key = v
	}
	if v := os.Getenv("QUEUE_DSN"); v != "" {
		cfg.Terminal.QueueDSN = v
	}
	if v := os.Getenv("TERMINAL_LOCAL_ADDR"); v != "" {
		cfg.Terminal.LocalAddr = v
	}

	log.Printf("[config] PORT=%s DB_DSN=%s LOG_FILE=%s TERMINAL_ID=%s SERVER_URL=%s",
		cfg.Port, cfg.DBDSN, cfg.LogFile, cfg.Terminal.ID, cfg.Terminal.ServerURL)
	return cfg
}

func mergeFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return err
	}
	if f.Server.Port != "" {
		cfg.Port = f.Server.Port
	}
	if f.Server.DBDSN != "" {
		cfg.DBDSN = f.Server.DBDSN
	}
	if f.Server.LogFile != "" {
		cfg.LogFile = f.Server.LogFile
	}
	if f.Server.SeedDemo != nil {
		cfg.SeedDemo = *f.Server.SeedDemo
	}
	if f.Server.HubSendBuffer > 0 {
		cfg.HubSendBuffer = f.Server.HubSendBuffer
	}
	if f.Server.SessionTimeoutSec > 0 {
		cfg.SessionTimeout = time.Duration(f.Server.SessionTimeoutSec) * time.Second
	}

	t := f.Terminal
	if t.ServerURL != "" {
		cfg.Terminal.ServerURL = t.ServerURL
	}
	if t.ID != "" {
		cfg.Terminal.ID = t.ID
	}
	if t.Key != "" {
		cfg.Terminal.Key = t.Key
	}
	if t.QueueDSN != "" {
		cfg.Terminal.QueueDSN = t.QueueDSN
	}
	if t.LocalAddr != "" {
		cfg.Terminal.LocalAddr = t.LocalAddr
	}
	if t.ProbeIntervalSec > 0 {
		cfg.Terminal.ProbeInterval = time.Duration(t.ProbeIntervalSec) * time.Second
	}
	if t.FailThreshold > 0 {
		cfg.Terminal.FailThreshold = t.FailThreshold
	}
	if t.OKThreshold > 0 {
		cfg.Terminal.OKThreshold = t.OKThreshold
	}
	if t.MaxAttempts > 0 {
		cfg.Terminal.MaxAttempts = t.MaxAttempts
	}
	if t.BaseBackoffMs > 0 {
		cfg.Terminal.BaseBackoff = time.Duration(t.BaseBackoffMs) * time.Millisecond
	}
	if t.MaxBackoffMs > 0 {
		cfg.Terminal.MaxBackoff = time.Duration(t.MaxBackoffMs) * time.Millisecond
	}
	if t.SubmitTimeoutSec > 0 {
		cfg.Terminal.SubmitTimeout = time.Duration(t.SubmitTimeoutSec) * time.Second
	}
	return nil
}
