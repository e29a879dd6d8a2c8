// Package config defines the bridge configuration: JSON5 file with
// environment overrides, read once at startup and immutable afterwards.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Session  SessionConfig  `json:"session"`
	Claude   ClaudeConfig   `json:"claude"`
	Discord  DiscordConfig  `json:"discord"`
	Alerts   AlertsConfig   `json:"alerts"`
	Voice    VoiceConfig    `json:"voice"`
	Telegram TelegramConfig `json:"telegram"`
}

// ServerConfig is the HTTP listener.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// SessionConfig bounds the assistant's conversational memory.
type SessionConfig struct {
	TTLSecs int64 `json:"ttl_secs"`
}

// ClaudeConfig locates the assistant binary and its working home.
type ClaudeConfig struct {
	Bin string `json:"bin"`

	// SelfPath is an optional self-description document appended to the
	// system prompt, re-read on every invocation.
	SelfPath string `json:"self_path"`

	Home string `json:"home"`
}

// DiscordConfig covers both the outbound REST surface (callbacks, alerts)
// and the optional bot ingress.
type DiscordConfig struct {
	BotToken     string `json:"bot_token"`
	AlertChannel string `json:"alert_channel"`

	// Listen opens a gateway connection and feeds messages into the queue.
	// The token alone does not imply ingress; REST-only deployments set
	// the token and leave this off.
	Listen bool `json:"listen"`
}

// AlertsConfig drives the long-running-request alert loop.
type AlertsConfig struct {
	// ThresholdsMin are the elapsed-minutes marks at which one alert each
	// is emitted per request. Kept sorted ascending.
	ThresholdsMin []int `json:"thresholds_min"`
}

// VoiceConfig points at the voice gateway for cross-channel injection.
type VoiceConfig struct {
	URL                string `json:"url"`
	Token              string `json:"token"`
	SessionTimeoutSecs int64  `json:"session_timeout_secs"`
}

// TelegramConfig enables the optional Telegram ingress. A non-empty token
// turns the ingress on.
type TelegramConfig struct {
	BotToken string `json:"bot_token"`
}

// Default returns a Config with the stock defaults.
func Default() *Config {
	home := os.Getenv("HOME")
	if home == "" {
		home = "."
	}
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3100,
		},
		Session: SessionConfig{
			TTLSecs: 3600,
		},
		Claude: ClaudeConfig{
			Bin:  "claude",
			Home: home,
		},
		Alerts: AlertsConfig{
			ThresholdsMin: []int{10, 20, 30},
		},
		Voice: VoiceConfig{
			SessionTimeoutSecs: 300,
		},
	}
}

// ListenAddr renders the HTTP bind address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ExpandHome expands a leading ~/ to the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
