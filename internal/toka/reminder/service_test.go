package reminder_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shiragiku/toka/internal/toka/reminder"
	"github.com/shiragiku/toka/internal/toka/schedule"
	"github.com/shiragiku/toka/internal/toka/settings"
)

type fakeSettings struct {
	cfg settings.Schedule
	err error
}

func (f *fakeSettings) Schedule(context.Context) (settings.Schedule, error) { return f.cfg, f.err }
func (f *fakeSettings) SetSchedule(context.Context, settings.Schedule) error {
	return errors.New("not implemented")
}
func (f *fakeSettings) Profile(context.Context) (settings.Profile, error) {
	return settings.Profile{}, nil
}
func (f *fakeSettings) SetProfile(context.Context, settings.Profile) error {
	return errors.New("not implemented")
}

type fakeRows struct {
	records []schedule.Record
	deleted [][]int
	listErr error
}

func (f *fakeRows) List(context.Context) ([]schedule.Record, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.records, nil
}

func (f *fakeRows) DeleteAt(_ context.Context, indices []int, snapshotLen int) (int, error) {
	valid := schedule.ValidIndices(indices, snapshotLen)
	f.deleted = append(f.deleted, valid)
	kept := make([]schedule.Record, 0, len(f.records))
	drop := make(map[int]struct{}, len(valid))
	for _, i := range valid {
		drop[i] = struct{}{}
	}
	for i, r := range f.records {
		if _, gone := drop[i]; !gone {
			kept = append(kept, r)
		}
	}
	f.records = kept
	return len(valid), nil
}

type fakeScanner struct {
	expired []int
	err     error
}

func (f *fakeScanner) ScanExpired(context.Context, []schedule.Record, time.Time) ([]int, error) {
	return f.expired, f.err
}

type captureNotifier struct {
	cfg     settings.Schedule
	records []schedule.Record
	purged  int
	calls   int
	err     error
}

func (c *captureNotifier) SendReminder(_ context.Context, cfg settings.Schedule, records []schedule.Record, purged int) error {
	c.calls++
	c.cfg = cfg
	c.records = records
	c.purged = purged
	return c.err
}

func enabled() *fakeSettings {
	return &fakeSettings{cfg: settings.Schedule{
		RemindersEnabled: true,
		ReminderTime:     "07:30",
		ReminderGuildID:  "g1",
	}}
}

func rows(tasks ...string) *fakeRows {
	f := &fakeRows{}
	for _, task := range tasks {
		f.records = append(f.records, schedule.Record{Type: "課題", Task: task, Due: "2025-06-01"})
	}
	return f
}

func TestSweepPurgesThenNotifies(t *testing.T) {
	rs := rows("expired", "kept")
	sc := &fakeScanner{expired: []int{0}}
	n := &captureNotifier{}
	svc := reminder.New(enabled(), rs, sc, n, time.UTC)

	if err := svc.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n.calls != 1 {
		t.Fatalf("notifier called %d times, want 1", n.calls)
	}
	if n.purged != 1 {
		t.Errorf("purged = %d, want 1", n.purged)
	}
	if len(n.records) != 1 || n.records[0].Task != "kept" {
		t.Errorf("notified records = %+v, want the surviving row", n.records)
	}
}

func TestSweepScanFailureStillNotifies(t *testing.T) {
	rs := rows("a", "b")
	sc := &fakeScanner{err: errors.New("scan broke")}
	n := &captureNotifier{}
	svc := reminder.New(enabled(), rs, sc, n, time.UTC)

	if err := svc.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n.calls != 1 || n.purged != 0 || len(n.records) != 2 {
		t.Errorf("notify after scan failure: calls=%d purged=%d records=%d", n.calls, n.purged, len(n.records))
	}
}

func TestSweepListFailurePropagates(t *testing.T) {
	rs := &fakeRows{listErr: errors.New("sheet down")}
	n := &captureNotifier{}
	svc := reminder.New(enabled(), rs, &fakeScanner{}, n, time.UTC)

	if err := svc.Sweep(context.Background()); err == nil {
		t.Fatal("expected error when the sheet is unreadable")
	}
	if n.calls != 0 {
		t.Errorf("notifier called %d times, want 0", n.calls)
	}
}

func TestRescheduleDisabled(t *testing.T) {
	st := &fakeSettings{cfg: settings.Schedule{RemindersEnabled: false, ReminderTime: "07:30"}}
	svc := reminder.New(st, rows(), &fakeScanner{}, &captureNotifier{}, time.UTC)
	t.Cleanup(svc.Stop)

	if err := svc.Reschedule(context.Background()); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
}

func TestRescheduleEnabled(t *testing.T) {
	svc := reminder.New(enabled(), rows(), &fakeScanner{}, &captureNotifier{}, time.UTC)
	t.Cleanup(svc.Stop)

	if err := svc.Reschedule(context.Background()); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	// Rescheduling again replaces the entry rather than stacking a second one.
	if err := svc.Reschedule(context.Background()); err != nil {
		t.Fatalf("second Reschedule: %v", err)
	}
}

func TestRescheduleWithoutSettings(t *testing.T) {
	st := &fakeSettings{err: settings.ErrNotFound}
	svc := reminder.New(st, rows(), &fakeScanner{}, &captureNotifier{}, time.UTC)
	t.Cleanup(svc.Stop)

	if err := svc.Reschedule(context.Background()); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
}
