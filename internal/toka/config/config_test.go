package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shiragiku/toka/internal/toka/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "toka.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
discord:
  token: tok-1
  guild_id: guild-1
  user_rate_interval: 5s
gemini:
  api_key: key-1
  models: [gemini-2.5-flash, gemini-2.0-flash]
sheets:
  spreadsheet_id: sheet-1
  credentials_file: /tmp/creds.json
db_path: /var/lib/toka.db
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discord.Token != "tok-1" || cfg.Discord.GuildID != "guild-1" {
		t.Errorf("discord = %+v", cfg.Discord)
	}
	if cfg.Discord.UserRateInterval != 5*time.Second {
		t.Errorf("rate interval = %v", cfg.Discord.UserRateInterval)
	}
	if len(cfg.Gemini.Models) != 2 {
		t.Errorf("models = %v", cfg.Gemini.Models)
	}
	if cfg.Sheets.SheetTitle != "シート1" {
		t.Errorf("default sheet title = %q", cfg.Sheets.SheetTitle)
	}
	if cfg.HTTP.ListenAddr != ":8080" {
		t.Errorf("default listen addr = %q", cfg.HTTP.ListenAddr)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
discord:
  token: from-file
gemini:
  api_key: key-1
sheets:
  credentials_file: /tmp/creds.json
`)
	t.Setenv("TOKA_DISCORD_TOKEN", "from-env")
	t.Setenv("TOKA_GEMINI_MODELS", "gemini-2.5-pro, gemini-2.5-flash")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discord.Token != "from-env" {
		t.Errorf("token = %q, want env override", cfg.Discord.Token)
	}
	if len(cfg.Gemini.Models) != 2 || cfg.Gemini.Models[0] != "gemini-2.5-pro" {
		t.Errorf("models = %v", cfg.Gemini.Models)
	}
}

func TestEnvOnly(t *testing.T) {
	t.Setenv("TOKA_DISCORD_TOKEN", "tok")
	t.Setenv("TOKA_GEMINI_API_KEY", "key")
	t.Setenv("TOKA_SHEETS_CREDENTIALS_FILE", "/tmp/creds.json")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load without file: %v", err)
	}
	if cfg.Discord.Token != "tok" {
		t.Errorf("token = %q", cfg.Discord.Token)
	}
}

func TestMissingRequiredFields(t *testing.T) {
	path := writeConfig(t, `
gemini:
  api_key: key-1
sheets:
  credentials_file: /tmp/creds.json
`)
	_, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "discord.token") {
		t.Fatalf("err = %v, want missing discord.token", err)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	path := writeConfig(t, `
discord:
  token: tok
  typo_field: oops
gemini:
  api_key: key-1
sheets:
  credentials_file: /tmp/creds.json
`)
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown-field error")
	}
}
