// Package config loads the toka process configuration from an optional YAML
// file overlaid with TOKA_* environment variables.  Environment always wins,
// so container deployments can run without a config file at all.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full process configuration.
type Config struct {
	Discord struct {
		// Token is the bot token.  Required.
		Token string `yaml:"token"`
		// GuildID scopes slash-command registration when set.
		GuildID string `yaml:"guild_id"`
		// UserRateInterval spaces one user's interactions.
		UserRateInterval time.Duration `yaml:"user_rate_interval"`
	} `yaml:"discord"`

	Gemini struct {
		// APIKey authenticates against the Gemini API.  Required.
		APIKey string `yaml:"api_key"`
		// Models overrides the fallback chain when non-empty.
		Models []string `yaml:"models"`
	} `yaml:"gemini"`

	Sheets struct {
		// SpreadsheetID is the default spreadsheet (the admin panel can
		// override it at runtime).
		SpreadsheetID string `yaml:"spreadsheet_id"`
		// SheetTitle is the tab name holding the rows.
		SheetTitle string `yaml:"sheet_title"`
		// CredentialsFile points at the service-account JSON key.
		CredentialsFile string `yaml:"credentials_file"`
	} `yaml:"sheets"`

	HTTP struct {
		// ListenAddr is the bind address of the admin/public API.
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"http"`

	// DBPath is the SQLite database location.
	DBPath string `yaml:"db_path"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Load reads path (skipped when empty or missing) and applies environment
// overrides.  The returned config is validated.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Sheets.SheetTitle = "シート1"
	cfg.HTTP.ListenAddr = ":8080"
	cfg.DBPath = "toka.db"
	cfg.LogLevel = "info"

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Env-only deployment.
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			dec := yaml.NewDecoder(bytes.NewReader(data))
			dec.KnownFields(true)
			if err := dec.Decode(cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays TOKA_* environment variables onto the file values.
func (c *Config) applyEnv() {
	envString("TOKA_DISCORD_TOKEN", &c.Discord.Token)
	envString("TOKA_DISCORD_GUILD_ID", &c.Discord.GuildID)
	envDuration("TOKA_DISCORD_USER_RATE_INTERVAL", &c.Discord.UserRateInterval)

	envString("TOKA_GEMINI_API_KEY", &c.Gemini.APIKey)
	envStrings("TOKA_GEMINI_MODELS", &c.Gemini.Models)

	envString("TOKA_SHEETS_SPREADSHEET_ID", &c.Sheets.SpreadsheetID)
	envString("TOKA_SHEETS_SHEET_TITLE", &c.Sheets.SheetTitle)
	envString("TOKA_SHEETS_CREDENTIALS_FILE", &c.Sheets.CredentialsFile)

	envString("TOKA_HTTP_LISTEN_ADDR", &c.HTTP.ListenAddr)
	envString("TOKA_DB_PATH", &c.DBPath)
	envString("TOKA_LOG_LEVEL", &c.LogLevel)
}

func (c *Config) validate() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("config: discord.token (TOKA_DISCORD_TOKEN) is required")
	}
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("config: gemini.api_key (TOKA_GEMINI_API_KEY) is required")
	}
	if c.Sheets.CredentialsFile == "" {
		return fmt.Errorf("config: sheets.credentials_file (TOKA_SHEETS_CREDENTIALS_FILE) is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path must not be empty")
	}
	return nil
}

// SheetsCredentials reads the service-account key file.
func (c *Config) SheetsCredentials() ([]byte, error) {
	data, err := os.ReadFile(c.Sheets.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("config: read sheets credentials: %w", err)
	}
	return data, nil
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envStrings(name string, dst *[]string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}

func envDuration(name string, dst *time.Duration) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return
	}
	*dst = d
}
