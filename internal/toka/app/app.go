// Package app wires the toka subsystems together: SQLite store, Gemini
// gateway, sheet reconciler, Discord bot, reminder service and the admin
// HTTP panel.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shiragiku/toka/internal/toka/admin"
	"github.com/shiragiku/toka/internal/toka/config"
	"github.com/shiragiku/toka/internal/toka/discord"
	"github.com/shiragiku/toka/internal/toka/llm"
	"github.com/shiragiku/toka/internal/toka/reminder"
	"github.com/shiragiku/toka/internal/toka/schedule"
	"github.com/shiragiku/toka/internal/toka/settings"
	"github.com/shiragiku/toka/internal/toka/sheet"
	"github.com/shiragiku/toka/internal/toka/store"
)

// App owns all long-lived components and their shutdown order.
type App struct {
	cfg *config.Config

	store     *store.Store
	settings  settings.Store
	table     *sheet.Reconciler
	bot       *discord.Bot
	reminders *reminder.Service
	health    *HealthServer

	cancel context.CancelFunc
}

// New builds the full application from cfg.  Nothing is started yet.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	setupLogger(cfg.LogLevel)

	db, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	settingsStore := settings.New(db)

	provider, err := llm.NewGemini(ctx, llm.GeminiConfig{APIKey: cfg.Gemini.APIKey})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("app: create Gemini provider: %w", err)
	}
	gateway := llm.NewGateway(provider, cfg.Gemini.Models)

	extractor := schedule.NewExtractor(gateway)
	resolver := schedule.NewResolver(gateway)
	scanner := schedule.NewScanner(gateway)

	table, err := buildTable(ctx, cfg, settingsStore)
	if err != nil {
		db.Close()
		return nil, err
	}

	bot, err := discord.New(discord.Config{
		Token:            cfg.Discord.Token,
		GuildID:          cfg.Discord.GuildID,
		UserRateInterval: cfg.Discord.UserRateInterval,
	}, table, extractor, resolver, scanner)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("app: create bot: %w", err)
	}

	notifier := discord.NewNotifier(bot.Session())
	reminders := reminder.New(settingsStore, table, scanner, notifier, schedule.Location())

	health := NewHealthServer(cfg.HTTP.ListenAddr, func(ctx context.Context) (int, error) {
		rows, err := table.List(ctx)
		return len(rows), err
	})
	adminSrv := admin.New(db.DB(), settingsStore, table, reminders, admin.Config{})
	adminSrv.RegisterRoutes(health)

	return &App{
		cfg:       cfg,
		store:     db,
		settings:  settingsStore,
		table:     table,
		bot:       bot,
		reminders: reminders,
		health:    health,
	}, nil
}

// buildTable resolves the active spreadsheet (saved settings win over the
// config default) and constructs the reconciler.  Changing the spreadsheet
// through the panel takes effect on the next restart.
func buildTable(ctx context.Context, cfg *config.Config, st settings.Store) (*sheet.Reconciler, error) {
	spreadsheetID := cfg.Sheets.SpreadsheetID
	if saved, err := st.Schedule(ctx); err == nil && saved.SheetID != "" {
		spreadsheetID = saved.SheetID
	} else if err != nil && !errors.Is(err, settings.ErrNotFound) {
		return nil, fmt.Errorf("app: load schedule settings: %w", err)
	}
	if spreadsheetID == "" {
		return nil, fmt.Errorf("app: no spreadsheet configured (set sheets.spreadsheet_id or save it in the panel)")
	}

	creds, err := cfg.SheetsCredentials()
	if err != nil {
		return nil, err
	}
	api, err := sheet.NewAPI(ctx, sheet.Config{
		SpreadsheetID:   spreadsheetID,
		SheetTitle:      cfg.Sheets.SheetTitle,
		CredentialsJSON: creds,
	})
	if err != nil {
		return nil, fmt.Errorf("app: create sheets client: %w", err)
	}
	return sheet.NewReconciler(api, cfg.Sheets.SheetTitle), nil
}

// Run starts all components and blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if err := a.health.Start(ctx); err != nil {
		return err
	}
	if err := a.bot.Start(ctx); err != nil {
		return fmt.Errorf("app: start bot: %w", err)
	}
	if err := a.reminders.Reschedule(ctx); err != nil {
		slog.Warn("app: initial reminder schedule", "err", err)
	}

	slog.Info("toka is running", "http", a.cfg.HTTP.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig.String())
	return nil
}

// Stop tears the application down in reverse start order.
func (a *App) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.reminders.Stop()
	a.bot.Stop()
	a.health.Stop()
	if err := a.store.Close(); err != nil {
		slog.Warn("app: close store", "err", err)
	}
}

// setupLogger installs the process-wide slog handler.
func setupLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
