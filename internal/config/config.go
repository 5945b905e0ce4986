package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	APIURL            string        `mapstructure:"api_url"`
	Token             string        `mapstructure:"token"`
	STUNServers       []string      `mapstructure:"stun_servers"`
	RejoinInterval    time.Duration `mapstructure:"rejoin_interval"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	ReactionTTL       time.Duration `mapstructure:"reaction_ttl"`
	LogLevel          string        `mapstructure:"log_level"`
}

// Options carries CLI flag overrides. Empty fields are ignored.
type Options struct {
	APIURL   string
	Token    string
	LogLevel string
}

// ErrMissingToken is returned when no credential is configured.
var ErrMissingToken = errors.New("MODVIEW_TOKEN environment variable is required")

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options)
// 2. Environment variables, including a .env file if present
// 3. Defaults
func Load(opts Options) (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("MODVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api_url", "http://localhost:4000")
	v.SetDefault("token", "")
	v.SetDefault("stun_servers", []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"})
	v.SetDefault("rejoin_interval", "5s")
	v.SetDefault("reconnect_delay", "1s")
	v.SetDefault("reconnect_attempts", 5)
	v.SetDefault("ping_interval", "25s")
	v.SetDefault("reaction_ttl", "3s")
	v.SetDefault("log_level", "info")
	_ = v.BindEnv("log_level", "MODVIEW_LOG_LEVEL", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if opts.APIURL != "" {
		cfg.APIURL = opts.APIURL
	}
	if opts.Token != "" {
		cfg.Token = opts.Token
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}

	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	if _, err := cfg.SignalURL(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Credential returns the token in "Bearer <token>" form.
func (c *Config) Credential() string {
	if strings.HasPrefix(c.Token, "Bearer") {
		return c.Token
	}
	return "Bearer " + c.Token
}

// SignalURL derives the websocket signaling endpoint from the API URL.
func (c *Config) SignalURL() (string, error) {
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported api url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/signaling"
	return u.String(), nil
}
