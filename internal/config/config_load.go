package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Load reads config from an optional JSON5 file, then overlays env vars.
// A missing file is not an error; defaults plus env are used. Invalid
// numeric values, from either source, fail startup.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.Claude.Home = ExpandHome(cfg.Claude.Home)
	cfg.Claude.SelfPath = ExpandHome(cfg.Claude.SelfPath)
	sort.Ints(cfg.Alerts.ThresholdsMin)
	return cfg, nil
}

// applyEnvOverrides overlays BRIDGE_ECHO_* env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() error {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
		return nil
	}
	envSecs := func(key string, dst *int64) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = int64(n)
		return nil
	}
	envBool := func(key string, dst *bool) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err == nil {
			*dst = b
		}
	}

	envStr("BRIDGE_ECHO_HOST", &c.Server.Host)
	if err := envInt("BRIDGE_ECHO_PORT", &c.Server.Port); err != nil {
		return err
	}
	if err := envSecs("BRIDGE_ECHO_SESSION_TTL", &c.Session.TTLSecs); err != nil {
		return err
	}
	envStr("BRIDGE_ECHO_CLAUDE_BIN", &c.Claude.Bin)
	envStr("BRIDGE_ECHO_SELF_PATH", &c.Claude.SelfPath)
	envStr("BRIDGE_ECHO_HOME", &c.Claude.Home)
	envStr("BRIDGE_ECHO_DISCORD_BOT_TOKEN", &c.Discord.BotToken)
	envStr("BRIDGE_ECHO_DISCORD_ALERT_CHANNEL", &c.Discord.AlertChannel)
	envBool("BRIDGE_ECHO_DISCORD_LISTEN", &c.Discord.Listen)
	envStr("BRIDGE_ECHO_TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	envStr("BRIDGE_ECHO_VOICE_URL", &c.Voice.URL)
	envStr("BRIDGE_ECHO_VOICE_TOKEN", &c.Voice.Token)
	if err := envSecs("BRIDGE_ECHO_VOICE_SESSION_TIMEOUT", &c.Voice.SessionTimeoutSecs); err != nil {
		return err
	}

	if v := os.Getenv("BRIDGE_ECHO_ALERT_THRESHOLDS"); v != "" {
		c.Alerts.ThresholdsMin = ParseThresholds(v)
	}
	return nil
}

// validate rejects values no deployment can run with, wherever they came
// from.
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: port out of range: %d", c.Server.Port)
	}
	if c.Session.TTLSecs < 0 {
		return fmt.Errorf("config: session ttl must not be negative: %d", c.Session.TTLSecs)
	}
	if c.Voice.SessionTimeoutSecs < 0 {
		return fmt.Errorf("config: voice session timeout must not be negative: %d", c.Voice.SessionTimeoutSecs)
	}
	if c.Claude.Bin == "" {
		return fmt.Errorf("config: claude bin must not be empty")
	}
	return nil
}

// ParseThresholds reads a comma-separated minutes list. Entries that do not
// parse are skipped.
func ParseThresholds(s string) []int {
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
