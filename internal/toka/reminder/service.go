// Package reminder runs the daily scheduled sweep: purge expired rows,
// then post the remaining schedule to the configured guild.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shiragiku/toka/common/trace"
	"github.com/shiragiku/toka/internal/toka/schedule"
	"github.com/shiragiku/toka/internal/toka/settings"
)

// sweepTimeout bounds one full sweep (expiry scan + delete + list + post).
const sweepTimeout = 2 * time.Minute

// Rows is the slice of the sheet reconciler the sweep needs.
type Rows interface {
	List(ctx context.Context) ([]schedule.Record, error)
	DeleteAt(ctx context.Context, indices []int, snapshotLen int) (int, error)
}

// Scanner flags expired rows in a snapshot.
type Scanner interface {
	ScanExpired(ctx context.Context, rows []schedule.Record, today time.Time) ([]int, error)
}

// Notifier posts the reminder message.  Implemented by the chat layer.
type Notifier interface {
	SendReminder(ctx context.Context, cfg settings.Schedule, records []schedule.Record, purged int) error
}

// Service owns the cron entry for the daily sweep.  The entry is replaced
// wholesale on Reschedule, so settings changes take effect without a
// restart.
//
// The sweep deliberately takes no lock against interactive sessions: both
// re-read the sheet and re-validate indices right before mutating, and the
// occasional race resolves as a silently dropped index.
type Service struct {
	settings settings.Store
	rows     Rows
	scanner  Scanner
	notifier Notifier
	loc      *time.Location

	mu   sync.Mutex
	cron *cron.Cron
}

// New creates the reminder service.  loc is the wall-clock timezone the
// configured HH:MM is interpreted in.
func New(st settings.Store, rows Rows, scanner Scanner, notifier Notifier, loc *time.Location) *Service {
	return &Service{
		settings: st,
		rows:     rows,
		scanner:  scanner,
		notifier: notifier,
		loc:      loc,
	}
}

// Reschedule reads the current settings and replaces the cron entry.  A
// disabled or unparseable reminder time stops the sweep entirely.
func (s *Service) Reschedule(ctx context.Context) error {
	cfg, err := s.settings.Schedule(ctx)
	if err != nil {
		// No settings saved yet: nothing to schedule.
		s.stopCron()
		return nil
	}

	hour, minute, ok := cfg.ReminderClock()
	if !cfg.RemindersEnabled || !ok {
		s.stopCron()
		slog.Info("reminder: daily sweep disabled")
		return nil
	}

	spec := fmt.Sprintf("%d %d * * *", minute, hour)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		s.cron.Stop()
	}
	s.cron = cron.New(cron.WithLocation(s.loc))
	if _, err := s.cron.AddFunc(spec, s.runSweep); err != nil {
		return fmt.Errorf("reminder: schedule %q: %w", spec, err)
	}
	s.cron.Start()
	slog.Info("reminder: daily sweep scheduled", "time", cfg.ReminderTime)
	return nil
}

// Stop halts the cron scheduler.  Safe to call when never scheduled.
func (s *Service) Stop() {
	s.stopCron()
}

func (s *Service) stopCron() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}

func (s *Service) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	ctx = trace.WithTraceID(ctx, trace.GenerateID())
	if err := s.Sweep(ctx); err != nil {
		slog.Error("reminder: daily sweep failed", "trace", trace.FromContext(ctx), "err", err)
	}
}

// Sweep performs one reminder cycle immediately: purge expired rows, read
// the surviving snapshot and hand it to the notifier.
func (s *Service) Sweep(ctx context.Context) error {
	cfg, err := s.settings.Schedule(ctx)
	if err != nil {
		return fmt.Errorf("reminder: load settings: %w", err)
	}

	purged, err := s.purgeExpired(ctx)
	if err != nil {
		// Housekeeping failure must not cancel the reminder itself.
		slog.Warn("reminder: expiry purge failed, continuing", "err", err)
	}

	records, err := s.rows.List(ctx)
	if err != nil {
		return fmt.Errorf("reminder: read schedule: %w", err)
	}

	if err := s.notifier.SendReminder(ctx, cfg, records, purged); err != nil {
		return fmt.Errorf("reminder: send: %w", err)
	}
	return nil
}

// purgeExpired runs the expiry scan against a fresh snapshot and deletes
// the flagged rows.  Returns how many rows were removed.
func (s *Service) purgeExpired(ctx context.Context) (int, error) {
	records, err := s.rows.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	expired, err := s.scanner.ScanExpired(ctx, records, time.Now())
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}
	return s.rows.DeleteAt(ctx, expired, len(records))
}
