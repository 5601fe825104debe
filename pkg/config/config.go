// Package config loads relaygate configuration from a YAML file with
// environment-variable overrides. Secrets (tokens, passwords) live here and
// only here; anything handed to a protocol's Config view goes through the
// Redacted helpers.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	LLM       LLMConfig       `yaml:"llm"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Control   ControlConfig   `yaml:"control"`
	Protocols ProtocolsConfig `yaml:"protocols"`
}

// LogConfig controls log verbosity and output format.
type LogConfig struct {
	Level  string `yaml:"level" env:"RELAYGATE_LOG_LEVEL"`
	Format string `yaml:"format" env:"RELAYGATE_LOG_FORMAT"`
}

// LLMConfig selects and configures the language model backend.
type LLMConfig struct {
	Provider       string `yaml:"provider" env:"RELAYGATE_LLM_PROVIDER"`
	Model          string `yaml:"model" env:"RELAYGATE_LLM_MODEL"`
	APIKey         string `yaml:"api_key" env:"RELAYGATE_LLM_API_KEY"`
	BaseURL        string `yaml:"base_url" env:"RELAYGATE_LLM_BASE_URL"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"RELAYGATE_LLM_TIMEOUT"`
}

// Timeout returns the bounded duration for one LLM completion call.
func (c LLMConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GatewayConfig is the HTTP API listener.
type GatewayConfig struct {
	Host string `yaml:"host" env:"RELAYGATE_HOST"`
	Port int    `yaml:"port" env:"RELAYGATE_PORT"`
}

// ControlConfig is the websocket control API listener.
type ControlConfig struct {
	Host string `yaml:"host" env:"RELAYGATE_CONTROL_HOST"`
	Port int    `yaml:"port" env:"RELAYGATE_CONTROL_PORT"`
}

// ProtocolsConfig holds the per-channel sections.
type ProtocolsConfig struct {
	Chat     ChatConfig     `yaml:"chat"`
	Email    EmailConfig    `yaml:"email"`
	Discord  DiscordConfig  `yaml:"discord"`
	Slack    SlackConfig    `yaml:"slack"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// ChatConfig configures the in-process chat channel.
type ChatConfig struct {
	Enabled   bool `yaml:"enabled" env:"RELAYGATE_ENABLE_CHAT"`
	Autostart bool `yaml:"autostart" env:"RELAYGATE_AUTOSTART_CHAT"`
}

// EmailConfig configures the SMTP channel.
type EmailConfig struct {
	Enabled   bool   `yaml:"enabled" env:"RELAYGATE_ENABLE_EMAIL"`
	Autostart bool   `yaml:"autostart" env:"RELAYGATE_AUTOSTART_EMAIL"`
	Host      string `yaml:"host" env:"RELAYGATE_EMAIL_HOST"`
	Port      int    `yaml:"port" env:"RELAYGATE_EMAIL_PORT"`
	User      string `yaml:"user" env:"RELAYGATE_EMAIL_USER"`
	Password  string `yaml:"password" env:"RELAYGATE_EMAIL_PASSWORD"`
	From      string `yaml:"from" env:"RELAYGATE_EMAIL_FROM"`
}

// Redacted returns the non-secret view exposed by the protocol.
func (c EmailConfig) Redacted() map[string]interface{} {
	return map[string]interface{}{
		"host": c.Host,
		"port": c.Port,
		"user": c.User,
		"from": c.From,
	}
}

// DiscordConfig configures the Discord channel.
type DiscordConfig struct {
	Enabled   bool   `yaml:"enabled" env:"RELAYGATE_ENABLE_DISCORD"`
	Autostart bool   `yaml:"autostart" env:"RELAYGATE_AUTOSTART_DISCORD"`
	Token     string `yaml:"token" env:"RELAYGATE_DISCORD_TOKEN"`
	ChannelID string `yaml:"channel_id" env:"RELAYGATE_DISCORD_CHANNEL"`
}

// Redacted returns the non-secret view exposed by the protocol.
func (c DiscordConfig) Redacted() map[string]interface{} {
	return map[string]interface{}{
		"channel_id": c.ChannelID,
		"has_token":  c.Token != "",
	}
}

// SlackConfig configures the Slack channel.
type SlackConfig struct {
	Enabled   bool   `yaml:"enabled" env:"RELAYGATE_ENABLE_SLACK"`
	Autostart bool   `yaml:"autostart" env:"RELAYGATE_AUTOSTART_SLACK"`
	Token     string `yaml:"token" env:"RELAYGATE_SLACK_TOKEN"`
	Channel   string `yaml:"channel" env:"RELAYGATE_SLACK_CHANNEL"`
}

// Redacted returns the non-secret view exposed by the protocol.
func (c SlackConfig) Redacted() map[string]interface{} {
	return map[string]interface{}{
		"channel":   c.Channel,
		"has_token": c.Token != "",
	}
}

// TelegramConfig configures the Telegram channel.
type TelegramConfig struct {
	Enabled   bool   `yaml:"enabled" env:"RELAYGATE_ENABLE_TELEGRAM"`
	Autostart bool   `yaml:"autostart" env:"RELAYGATE_AUTOSTART_TELEGRAM"`
	Token     string `yaml:"token" env:"RELAYGATE_TELEGRAM_TOKEN"`
	ChatID    int64  `yaml:"chat_id" env:"RELAYGATE_TELEGRAM_CHAT_ID"`
}

// Redacted returns the non-secret view exposed by the protocol.
func (c TelegramConfig) Redacted() map[string]interface{} {
	return map[string]interface{}{
		"chat_id":   c.ChatID,
		"has_token": c.Token != "",
	}
}

// Default returns the built-in configuration: chat enabled and autostarted,
// everything else off, LLM pointed at a local OpenAI-compatible endpoint.
func Default() *Config {
	cfg := &Config{}
	cfg.Log.Level = "info"
	cfg.Log.Format = "console"
	cfg.LLM.Provider = "openai"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.BaseURL = ""
	cfg.LLM.TimeoutSeconds = 30
	cfg.Gateway.Host = "0.0.0.0"
	cfg.Gateway.Port = 8000
	cfg.Control.Host = "0.0.0.0"
	cfg.Control.Port = 8080
	cfg.Protocols.Chat.Enabled = true
	cfg.Protocols.Chat.Autostart = true
	cfg.Protocols.Email.Port = 587
	return cfg
}

// Load reads configuration from the YAML file at path (if it exists), then
// applies environment overrides. A missing file is not an error; env vars
// alone are a complete configuration.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}
	return cfg, nil
}
