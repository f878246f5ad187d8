// Package config loads the bot configuration from a YAML file merged with
// environment overrides, and provides a typed Config used across the process.
// Environment variables use the GOLEM_ prefix with _ as the nesting separator,
// e.g. GOLEM_TWITCH_CLIENT_SECRET overrides twitch.client_secret.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// WatchedStream maps a Twitch login to the IRC identity notified when the
// stream changes state. The mapping is immutable for the process lifetime.
type WatchedStream struct {
	// Nickname is the Twitch user login, as shown in the stream URL.
	Nickname string `koanf:"nickname"`
	// IRCNick is how the streamer is known on IRC.
	IRCNick string `koanf:"irc_nick"`
	// IRCChannels lists the channels to notify.
	IRCChannels []string `koanf:"irc_channels"`
}

type IRC struct {
	Server       string   `koanf:"server"`
	Port         int      `koanf:"port"`
	UseTLS       bool     `koanf:"use_tls"`
	Nickname     string   `koanf:"nickname"`
	SASLPassword string   `koanf:"sasl_password"`
	Channels     []string `koanf:"channels"`
}

type Twitch struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	// WebhookSecret signs EventSub notifications. Shared with Twitch at
	// subscription time and used to verify every inbound delivery.
	WebhookSecret string `koanf:"webhook_secret"`
	// CallbackURL is the publicly reachable URL advertised to Twitch.
	CallbackURL string `koanf:"callback_url"`
	// BindAddr is the local listen address for the webhook HTTP server.
	BindAddr string `koanf:"bind_addr"`
	// ReconcileInterval is how often subscriptions are reconciled against
	// the desired set. Kept well under Twitch's verification lapse window.
	ReconcileInterval time.Duration   `koanf:"reconcile_interval"`
	WatchedStreams    []WatchedStream `koanf:"watched_streams"`
}

type Config struct {
	IRC              IRC      `koanf:"irc"`
	Twitch           Twitch   `koanf:"twitch"`
	BlacklistedUsers []string `koanf:"blacklisted_users"`
	// DatabaseDSN enables the crypto-rate history when set.
	DatabaseDSN string `koanf:"database_dsn"`
}

// Load reads the YAML file at path and applies GOLEM_* environment overrides.
// Defaults keep the bot runnable against a local setup with minimal config.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// GOLEM_IRC_SERVER -> irc.server, GOLEM_TWITCH_CLIENT_SECRET -> twitch.client_secret
	err := k.Load(env.Provider("GOLEM_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "GOLEM_"))
		for _, prefix := range []string{"irc_", "twitch_"} {
			if strings.HasPrefix(s, prefix) {
				return strings.TrimSuffix(prefix, "_") + "." + strings.TrimPrefix(s, prefix)
			}
		}
		return s
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("read env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyDefaults(cfg)

	// Historical env var names, kept so existing deployments don't break.
	if v := os.Getenv("TWITCH_APP_SECRET"); v != "" && cfg.Twitch.WebhookSecret == "" {
		cfg.Twitch.WebhookSecret = v
	}
	if v := os.Getenv("SASL_PASSWORD"); v != "" && cfg.IRC.SASLPassword == "" {
		cfg.IRC.SASLPassword = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.IRC.Server == "" {
		cfg.IRC.Server = "irc.libera.chat"
	}
	if cfg.IRC.Port == 0 {
		cfg.IRC.Port = 6697
		cfg.IRC.UseTLS = true
	}
	if cfg.IRC.Nickname == "" {
		cfg.IRC.Nickname = "golem"
	}
	if cfg.Twitch.BindAddr == "" {
		cfg.Twitch.BindAddr = ":7777"
	}
	if cfg.Twitch.ReconcileInterval <= 0 {
		cfg.Twitch.ReconcileInterval = 6 * time.Hour
	}
}

// Validate rejects configurations that would start but misbehave later.
func (c *Config) Validate() error {
	if len(c.IRC.Channels) == 0 {
		return fmt.Errorf("no IRC channels configured")
	}
	if len(c.Twitch.WatchedStreams) > 0 {
		if c.Twitch.ClientID == "" || c.Twitch.ClientSecret == "" {
			return fmt.Errorf("watched streams configured but twitch client id/secret missing")
		}
		if c.Twitch.WebhookSecret == "" {
			return fmt.Errorf("watched streams configured but twitch webhook secret missing")
		}
		if _, err := url.ParseRequestURI(c.Twitch.CallbackURL); err != nil {
			return fmt.Errorf("invalid twitch callback URL %q: %w", c.Twitch.CallbackURL, err)
		}
	}
	for _, ws := range c.Twitch.WatchedStreams {
		if ws.Nickname == "" || len(ws.IRCChannels) == 0 {
			return fmt.Errorf("watched stream needs a nickname and at least one IRC channel")
		}
	}
	return nil
}

// WebhookPath returns the path component of the callback URL, which the HTTP
// server mounts the webhook handler on. Defaults to /twitch/webhook when the
// callback URL has no path.
func (c *Config) WebhookPath() string {
	u, err := url.Parse(c.Twitch.CallbackURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return "/twitch/webhook"
	}
	return u.Path
}
