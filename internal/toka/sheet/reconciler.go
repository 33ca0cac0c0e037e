package sheet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shiragiku/toka/common/retry"
	"github.com/shiragiku/toka/internal/toka/schedule"
)

// Table layout constants.  Row 1 is the human-readable header; data starts
// at physical row 2, so logical record index i lives in physical row i+2.
const (
	headerOffset = 1
	firstDataRow = headerOffset + 1
)

// Reconciler applies logical record operations to the sheet.
//
// It owns index translation (logical 0-based record index → physical sheet
// row) and mutation ordering.  It does not cache rows: every List is a
// fresh read, and concurrent interactive / scheduled runs are allowed to
// race — callers re-validate index sets against a fresh snapshot right
// before deleting.
type Reconciler struct {
	api        API
	sheetTitle string
	retryCfg   retry.Config
}

// NewReconciler returns a Reconciler over api.  sheetTitle is the tab name
// used to build A1 ranges.
func NewReconciler(api API, sheetTitle string) *Reconciler {
	return &Reconciler{
		api:        api,
		sheetTitle: sheetTitle,
		retryCfg: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			ShouldRetry:  Retryable,
		},
	}
}

// listRange addresses all data rows; appendRange lets the service find the
// end of the table itself.
func (r *Reconciler) listRange() string {
	return fmt.Sprintf("%s!A%d:C", r.sheetTitle, firstDataRow)
}

func (r *Reconciler) appendRange() string {
	return fmt.Sprintf("%s!A:A", r.sheetTitle)
}

func (r *Reconciler) rowRange(index int) string {
	row := index + firstDataRow
	return fmt.Sprintf("%s!A%d:C%d", r.sheetTitle, row, row)
}

// List reads the current record snapshot.  The result is never nil.
func (r *Reconciler) List(ctx context.Context) ([]schedule.Record, error) {
	var rows [][]string
	err := retry.Do(ctx, r.retryCfg, func() error {
		var err error
		rows, err = r.api.Get(ctx, r.listRange())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sheet: list records: %w", err)
	}
	return schedule.RecordsFromRows(rows), nil
}

// Append persists records at the end of the table.  Records without a task
// are rejected; Type and Due sentinels are filled in.  Returns the number
// of rows written.
func (r *Reconciler) Append(ctx context.Context, records []schedule.Record) (int, error) {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		if !rec.Valid() {
			continue
		}
		rows = append(rows, rec.Row())
	}
	if len(rows) == 0 {
		return 0, nil
	}

	err := retry.Do(ctx, r.retryCfg, func() error {
		return r.api.Append(ctx, r.appendRange(), rows)
	})
	if err != nil {
		return 0, fmt.Errorf("sheet: append %d records: %w", len(rows), err)
	}
	return len(rows), nil
}

// UpdateAt overwrites the record at the given logical index.
func (r *Reconciler) UpdateAt(ctx context.Context, index int, record schedule.Record) error {
	if index < 0 {
		return fmt.Errorf("sheet: update: index %d out of range", index)
	}
	if !record.Valid() {
		return fmt.Errorf("sheet: update: record task must not be empty")
	}

	err := retry.Do(ctx, r.retryCfg, func() error {
		return r.api.Update(ctx, r.rowRange(index), [][]string{record.Row()})
	})
	if err != nil {
		return fmt.Errorf("sheet: update record %d: %w", index, err)
	}
	return nil
}

// DeleteAt removes the records at the given logical indices and returns how
// many rows were deleted.
//
// Indices are re-validated against snapshotLen (deduplicated, bounds-checked,
// sorted descending) even when the caller already did so: removing a row
// shifts everything behind it, so issuing the deletions in any order other
// than highest-first would silently delete the wrong rows.
func (r *Reconciler) DeleteAt(ctx context.Context, indices []int, snapshotLen int) (int, error) {
	valid := schedule.ValidIndices(indices, snapshotLen)
	if len(valid) == 0 {
		return 0, nil
	}

	rowStarts := make([]int, 0, len(valid))
	for _, idx := range valid {
		rowStarts = append(rowStarts, idx+headerOffset)
	}

	err := retry.Do(ctx, r.retryCfg, func() error {
		return r.api.BatchDelete(ctx, rowStarts)
	})
	if err != nil {
		return 0, fmt.Errorf("sheet: delete %d records: %w", len(valid), err)
	}
	slog.Info("sheet: deleted records", "count", len(valid))
	return len(valid), nil
}

// ReplaceAll clears the data range and rewrites it with records.  Used by
// the admin panel's bulk editor; interactive flows use Append/UpdateAt/
// DeleteAt instead.
func (r *Reconciler) ReplaceAll(ctx context.Context, records []schedule.Record) error {
	err := retry.Do(ctx, r.retryCfg, func() error {
		return r.api.Clear(ctx, r.listRange())
	})
	if err != nil {
		return fmt.Errorf("sheet: clear records: %w", err)
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		if !rec.Valid() {
			continue
		}
		rows = append(rows, rec.Row())
	}
	if len(rows) == 0 {
		return nil
	}

	err = retry.Do(ctx, r.retryCfg, func() error {
		return r.api.Update(ctx, r.listRange(), rows)
	})
	if err != nil {
		return fmt.Errorf("sheet: rewrite records: %w", err)
	}
	return nil
}
