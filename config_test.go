package main

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	valid := Config{port: 5000, memory: true, sessionTTL: time.Hour, sweepInterval: time.Minute}
	if err := valid.validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port too low", func(c *Config) { c.port = 0 }},
		{"port too high", func(c *Config) { c.port = 70000 }},
		{"no store", func(c *Config) { c.memory = false }},
		{"no ttl", func(c *Config) { c.sessionTTL = 0 }},
		{"no interval", func(c *Config) { c.sweepInterval = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := cfg.validate(); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

func TestFlagsReadEnvironment(t *testing.T) {
	t.Setenv("STOP_PORT", "6000")
	t.Setenv("STOP_MONGODB_URI", "mongodb://example:27017")
	t.Setenv("STOP_SESSION_TTL", "2h")

	cfg := &Config{}
	newCmd(cfg)

	if cfg.port != 6000 {
		t.Fatalf("expected port 6000, got %d", cfg.port)
	}
	if cfg.mongoURI != "mongodb://example:27017" {
		t.Fatalf("expected uri from env, got %q", cfg.mongoURI)
	}
	if cfg.sessionTTL != 2*time.Hour {
		t.Fatalf("expected 2h ttl, got %s", cfg.sessionTTL)
	}
	if cfg.mongoDatabase != "stop" || cfg.sweepInterval != 10*time.Minute {
		t.Fatalf("expected defaults, got %q and %s", cfg.mongoDatabase, cfg.sweepInterval)
	}
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("STOP_PORT", "6000")

	cfg := &Config{}
	cmd := newCmd(cfg)
	if err := cmd.PersistentFlags().Parse([]string{"--port", "7000", "--memory"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.port != 7000 || !cfg.memory {
		t.Fatalf("expected flags to win, got port %d memory %v", cfg.port, cfg.memory)
	}
}
