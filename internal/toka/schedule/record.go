// Package schedule implements toka's natural-language schedule pipeline:
// extracting structured records from free text, resolving free-text deletion
// requests against the current row list, and flagging expired rows.
//
// Records have purely positional identity — a record is addressed by its
// 0-based index within the row sequence as read at one point in time.  Any
// index set computed by this package is only valid against that snapshot and
// must be re-validated (ValidIndices) immediately before mutation.
package schedule

import (
	"strings"
	"time"
)

// Well-known field sentinels.  The sheet is shared with human editors, so
// these are stored verbatim rather than as empty cells.
const (
	// TypeHomework marks submission-style work (宿題, 提出, レポート...).
	TypeHomework = "課題"
	// TypeTest marks exam-style entries (テスト, 試験...).
	TypeTest = "テスト"
	// TypeOther is the category fallback when no cue word matches.
	TypeOther = "その他"
	// DueUnspecified is stored when no due date could be extracted.
	DueUnspecified = "不明"
)

// DueLayout is the canonical due-date form produced by the extractor.
const DueLayout = "2006-01-02"

// Record is one schedule row: a category, a free-text task and a due date
// (canonical YYYY-MM-DD or DueUnspecified).
type Record struct {
	Type string `json:"type"`
	Task string `json:"task"`
	Due  string `json:"due"`
}

// Valid reports whether the record may be persisted.  Task is the only
// required field; Type and Due fall back to sentinels via Normalize.
func (r Record) Valid() bool {
	return strings.TrimSpace(r.Task) != ""
}

// Normalize trims all fields and substitutes sentinels for missing Type/Due.
func (r Record) Normalize() Record {
	r.Type = strings.TrimSpace(r.Type)
	r.Task = strings.TrimSpace(r.Task)
	r.Due = strings.TrimSpace(r.Due)
	if r.Type == "" {
		r.Type = TypeOther
	}
	if r.Due == "" {
		r.Due = DueUnspecified
	}
	return r
}

// DueDate parses the record's due field as a calendar date.  The second
// return value is false for DueUnspecified and for anything that is not a
// strict YYYY-MM-DD date.
func (r Record) DueDate() (time.Time, bool) {
	if r.Due == "" || r.Due == DueUnspecified {
		return time.Time{}, false
	}
	t, err := time.Parse(DueLayout, r.Due)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// RecordFromRow converts one raw sheet row (type, task, due — shorter rows
// are padded) into a Record.
func RecordFromRow(row []string) Record {
	var r Record
	if len(row) > 0 {
		r.Type = row[0]
	}
	if len(row) > 1 {
		r.Task = row[1]
	}
	if len(row) > 2 {
		r.Due = row[2]
	}
	return r.Normalize()
}

// Row converts the record back into the three-column sheet form.
func (r Record) Row() []string {
	n := r.Normalize()
	return []string{n.Type, n.Task, n.Due}
}

// RecordsFromRows converts a raw sheet snapshot into records, preserving
// positions.  The result is never nil.
func RecordsFromRows(rows [][]string) []Record {
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, RecordFromRow(row))
	}
	return out
}

// tokyo is the fixed reference timezone for relative-date resolution.  The
// pipeline anchors "today" here regardless of the host timezone so that a
// server in UTC resolves 明日 the same way the bot's users do.
var tokyo = time.FixedZone("JST", 9*60*60)

// Location returns the reference timezone used for relative-date
// resolution and reminder scheduling.
func Location() *time.Location {
	return tokyo
}

// Today returns the current calendar date in the reference timezone,
// formatted as YYYY-MM-DD.
func Today(now time.Time) string {
	return now.In(tokyo).Format(DueLayout)
}

// Tomorrow returns the day after Today in the reference timezone.
func Tomorrow(now time.Time) string {
	return now.In(tokyo).AddDate(0, 0, 1).Format(DueLayout)
}
