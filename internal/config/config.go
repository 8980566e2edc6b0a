package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the development backend configuration.
type Config struct {
	Port        int
	JWTSecret   string
	GinMode     string
	TLSCertFile string
	TLSKeyFile  string
	TokenExpiry time.Duration
	RedisAddr   string
}

// ClientConfig configures the headless client.
type ClientConfig struct {
	BackendURL      string
	Username        string
	Password        string
	ReconnectDelay  time.Duration
	ReconnectJitter time.Duration
	TypingExpiry    time.Duration
	SendPolicy      string
	LogLevel        string
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

func LoadConfig() (Config, error) {
	return LoadConfigFromEnv(osEnv{})
}

func LoadConfigFromEnv(env Env) (Config, error) {
	cfg := Config{
		Port:        8000,
		GinMode:     "release",
		TokenExpiry: 24 * time.Hour,
	}

	if raw := env.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT")
		}
		cfg.Port = port
	}

	cfg.JWTSecret = env.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}

	if raw := env.Getenv("GIN_MODE"); raw != "" {
		cfg.GinMode = raw
	}

	cfg.TLSCertFile = env.Getenv("TLS_CERT_FILE")
	cfg.TLSKeyFile = env.Getenv("TLS_KEY_FILE")

	if raw := env.Getenv("TOKEN_EXPIRY_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid TOKEN_EXPIRY_SECONDS")
		}
		cfg.TokenExpiry = time.Duration(seconds) * time.Second
	}

	cfg.RedisAddr = env.Getenv("REDIS_ADDR")

	return cfg, nil
}

func LoadClientConfig() (ClientConfig, error) {
	return LoadClientConfigFromEnv(osEnv{})
}

func LoadClientConfigFromEnv(env Env) (ClientConfig, error) {
	cfg := ClientConfig{
		BackendURL:     "http://localhost:8000",
		ReconnectDelay: 3 * time.Second,
		TypingExpiry:   5 * time.Second,
		SendPolicy:     "drop",
		LogLevel:       "info",
	}

	if raw := env.Getenv("BACKEND_URL"); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return ClientConfig{}, fmt.Errorf("invalid BACKEND_URL")
		}
		cfg.BackendURL = strings.TrimRight(raw, "/")
	}

	cfg.Username = env.Getenv("SISI_USERNAME")
	cfg.Password = env.Getenv("SISI_PASSWORD")

	var err error
	if cfg.ReconnectDelay, err = millis(env, "RECONNECT_DELAY_MS", cfg.ReconnectDelay, false); err != nil {
		return ClientConfig{}, err
	}
	if cfg.ReconnectJitter, err = millis(env, "RECONNECT_JITTER_MS", 0, true); err != nil {
		return ClientConfig{}, err
	}

	if raw := env.Getenv("TYPING_EXPIRY_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return ClientConfig{}, fmt.Errorf("invalid TYPING_EXPIRY_SECONDS")
		}
		cfg.TypingExpiry = time.Duration(seconds) * time.Second
	}

	if raw := env.Getenv("SEND_POLICY"); raw != "" {
		switch strings.ToLower(raw) {
		case "drop", "queue":
			cfg.SendPolicy = strings.ToLower(raw)
		default:
			return ClientConfig{}, fmt.Errorf("invalid SEND_POLICY")
		}
	}

	if raw := env.Getenv("LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}

	return cfg, nil
}

func millis(env Env, key string, def time.Duration, allowZero bool) (time.Duration, error) {
	raw := env.Getenv(key)
	if raw == "" {
		return def, nil
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms < 0 || (ms == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
