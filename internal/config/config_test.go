package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MODVIEW_TOKEN", "abc")

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIURL != "http://localhost:4000" {
		t.Errorf("unexpected api url %q", cfg.APIURL)
	}
	if cfg.RejoinInterval != 5*time.Second {
		t.Errorf("expected 5s rejoin interval, got %s", cfg.RejoinInterval)
	}
	if cfg.ReconnectAttempts != 5 || cfg.ReconnectDelay != time.Second {
		t.Errorf("unexpected reconnect policy %d/%s", cfg.ReconnectAttempts, cfg.ReconnectDelay)
	}
	if len(cfg.STUNServers) != 2 {
		t.Errorf("expected 2 STUN servers, got %v", cfg.STUNServers)
	}
}

func TestLoad_FlagOverridesEnv(t *testing.T) {
	t.Setenv("MODVIEW_TOKEN", "from-env")
	t.Setenv("MODVIEW_API_URL", "https://env.example")

	cfg, err := Load(Options{APIURL: "https://flag.example"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIURL != "https://flag.example" {
		t.Errorf("expected flag api url, got %q", cfg.APIURL)
	}
	if cfg.Token != "from-env" {
		t.Errorf("expected env token, got %q", cfg.Token)
	}
}

func TestLoad_MissingToken(t *testing.T) {
	t.Setenv("MODVIEW_TOKEN", "")

	_, err := Load(Options{})
	if !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestCredential_AddsBearerOnce(t *testing.T) {
	if got := (&Config{Token: "abc"}).Credential(); got != "Bearer abc" {
		t.Errorf("got %q", got)
	}
	if got := (&Config{Token: "Bearer abc"}).Credential(); got != "Bearer abc" {
		t.Errorf("got %q", got)
	}
}

func TestSignalURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:4000":     "ws://localhost:4000/signaling",
		"https://api.example.com/":  "wss://api.example.com/signaling",
		"https://api.example.com/v": "wss://api.example.com/v/signaling",
	}
	for in, want := range cases {
		got, err := (&Config{APIURL: in}).SignalURL()
		if err != nil {
			t.Fatalf("SignalURL(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("SignalURL(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := (&Config{APIURL: "ftp://x"}).SignalURL(); err == nil {
		t.Error("expected error for ftp scheme")
	}
}
