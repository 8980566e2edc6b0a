package config

import (
	"testing"
	"time"
)

type mapEnv map[string]string

func (m mapEnv) Getenv(key string) string { return m[key] }

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapEnv{"JWT_SECRET": "x"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Port != 8000 {
		t.Fatalf("expected default port 8000, got %d", cfg.Port)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("expected default gin mode release, got %q", cfg.GinMode)
	}
	if cfg.TokenExpiry != 24*time.Hour {
		t.Fatalf("expected 24h token expiry, got %s", cfg.TokenExpiry)
	}
	if cfg.RedisAddr != "" {
		t.Fatalf("expected redis disabled by default")
	}
}

func TestLoadConfigFromEnv_MissingSecret(t *testing.T) {
	_, err := LoadConfigFromEnv(mapEnv{})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapEnv{
		"JWT_SECRET":           "x",
		"PORT":                 "1234",
		"TOKEN_EXPIRY_SECONDS": "60",
		"REDIS_ADDR":           "localhost:6379",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Port != 1234 {
		t.Fatalf("expected port 1234, got %d", cfg.Port)
	}
	if cfg.TokenExpiry != time.Minute {
		t.Fatalf("expected 1m expiry, got %s", cfg.TokenExpiry)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("unexpected redis addr %q", cfg.RedisAddr)
	}
}

func TestLoadConfigFromEnv_InvalidPort(t *testing.T) {
	if _, err := LoadConfigFromEnv(mapEnv{"JWT_SECRET": "x", "PORT": "70000"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadClientConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadClientConfigFromEnv(mapEnv{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.BackendURL != "http://localhost:8000" {
		t.Fatalf("unexpected backend url %q", cfg.BackendURL)
	}
	if cfg.ReconnectDelay != 3*time.Second || cfg.ReconnectJitter != 0 {
		t.Fatalf("unexpected reconnect settings %s/%s", cfg.ReconnectDelay, cfg.ReconnectJitter)
	}
	if cfg.TypingExpiry != 5*time.Second {
		t.Fatalf("unexpected typing expiry %s", cfg.TypingExpiry)
	}
	if cfg.SendPolicy != "drop" {
		t.Fatalf("unexpected send policy %q", cfg.SendPolicy)
	}
}

func TestLoadClientConfigFromEnv_Overrides(t *testing.T) {
	cfg, err := LoadClientConfigFromEnv(mapEnv{
		"BACKEND_URL":         "https://api.sisi.example/",
		"RECONNECT_DELAY_MS":  "1500",
		"RECONNECT_JITTER_MS": "250",
		"SEND_POLICY":         "QUEUE",
		"SISI_USERNAME":       "sam",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.BackendURL != "https://api.sisi.example" {
		t.Fatalf("unexpected backend url %q", cfg.BackendURL)
	}
	if cfg.ReconnectDelay != 1500*time.Millisecond || cfg.ReconnectJitter != 250*time.Millisecond {
		t.Fatalf("unexpected reconnect settings %s/%s", cfg.ReconnectDelay, cfg.ReconnectJitter)
	}
	if cfg.SendPolicy != "queue" || cfg.Username != "sam" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadClientConfigFromEnv_Invalid(t *testing.T) {
	for _, env := range []mapEnv{
		{"BACKEND_URL": "ftp://x"},
		{"RECONNECT_DELAY_MS": "0"},
		{"RECONNECT_JITTER_MS": "-1"},
		{"TYPING_EXPIRY_SECONDS": "soon"},
		{"SEND_POLICY": "burst"},
	} {
		if _, err := LoadClientConfigFromEnv(env); err == nil {
			t.Fatalf("expected error for %v", env)
		}
	}
}
