package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if !cfg.Protocols.Chat.Enabled || !cfg.Protocols.Chat.Autostart {
		t.Error("chat should be enabled and autostarted by default")
	}
	if cfg.Protocols.Discord.Enabled {
		t.Error("discord should be disabled by default")
	}
	if cfg.Gateway.Port != 8000 || cfg.Control.Port != 8080 {
		t.Errorf("unexpected default ports: %d %d", cfg.Gateway.Port, cfg.Control.Port)
	}
	if cfg.LLM.Timeout() != 30*time.Second {
		t.Errorf("unexpected default llm timeout %v", cfg.LLM.Timeout())
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
llm:
  provider: anthropic
  model: claude-sonnet-4-0
  timeout_seconds: 10
protocols:
  slack:
    enabled: true
    token: xoxb-secret
    channel: "#general"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("expected anthropic, got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Timeout() != 10*time.Second {
		t.Errorf("expected 10s timeout, got %v", cfg.LLM.Timeout())
	}
	if !cfg.Protocols.Slack.Enabled || cfg.Protocols.Slack.Token != "xoxb-secret" {
		t.Errorf("unexpected slack config %+v", cfg.Protocols.Slack)
	}
	// Defaults survive a partial file.
	if !cfg.Protocols.Chat.Enabled {
		t.Error("chat default lost after partial yaml load")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file must not be an error, got %v", err)
	}
	if !cfg.Protocols.Chat.Enabled {
		t.Error("expected default config")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RELAYGATE_LLM_PROVIDER", "moonshot")
	t.Setenv("RELAYGATE_ENABLE_DISCORD", "true")
	t.Setenv("RELAYGATE_DISCORD_TOKEN", "tok-123")
	t.Setenv("RELAYGATE_PORT", "9001")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.Provider != "moonshot" {
		t.Errorf("expected moonshot, got %q", cfg.LLM.Provider)
	}
	if !cfg.Protocols.Discord.Enabled || cfg.Protocols.Discord.Token != "tok-123" {
		t.Errorf("unexpected discord config %+v", cfg.Protocols.Discord)
	}
	if cfg.Gateway.Port != 9001 {
		t.Errorf("expected port 9001, got %d", cfg.Gateway.Port)
	}
}

func TestRedactedViewsExcludeSecrets(t *testing.T) {
	email := EmailConfig{Host: "smtp.example.com", User: "bot", Password: "hunter2"}
	for k, v := range email.Redacted() {
		if v == "hunter2" {
			t.Errorf("password leaked through key %q", k)
		}
	}
	if _, ok := email.Redacted()["password"]; ok {
		t.Error("redacted email view must not contain a password key")
	}

	tests := []struct {
		name     string
		redacted map[string]interface{}
		secret   string
	}{
		{"discord", DiscordConfig{Token: "d-secret", ChannelID: "c1"}.Redacted(), "d-secret"},
		{"slack", SlackConfig{Token: "s-secret", Channel: "#g"}.Redacted(), "s-secret"},
		{"telegram", TelegramConfig{Token: "t-secret", ChatID: 42}.Redacted(), "t-secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.redacted {
				if v == tt.secret {
					t.Errorf("token leaked through key %q", k)
				}
			}
			if tt.redacted["has_token"] != true {
				t.Error("expected has_token marker")
			}
		})
	}
}
