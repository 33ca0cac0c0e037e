package sheet_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/shiragiku/toka/internal/toka/schedule"
	"github.com/shiragiku/toka/internal/toka/sheet"
)

// fakeAPI simulates the spreadsheet grid: a header row followed by data
// rows.  BatchDelete applies requests one at a time exactly like the real
// service, so ordering mistakes in the reconciler show up as wrong rows
// being deleted.
type fakeAPI struct {
	grid    [][]string // grid[0] is the header row
	deletes []int      // row starts, in the order issued
	fail    error
}

func newFakeAPI(records ...[]string) *fakeAPI {
	grid := [][]string{{"種別", "内容", "期限"}}
	grid = append(grid, records...)
	return &fakeAPI{grid: grid}
}

func (f *fakeAPI) Get(_ context.Context, _ string) ([][]string, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	out := make([][]string, 0, len(f.grid)-1)
	for _, row := range f.grid[1:] {
		out = append(out, append([]string(nil), row...))
	}
	return out, nil
}

func (f *fakeAPI) Append(_ context.Context, _ string, rows [][]string) error {
	if f.fail != nil {
		return f.fail
	}
	f.grid = append(f.grid, rows...)
	return nil
}

func (f *fakeAPI) Update(_ context.Context, rng string, rows [][]string) error {
	if f.fail != nil {
		return f.fail
	}
	// Two range shapes are used by the reconciler: a single-row A%d:C%d
	// update and the full-table rewrite A2:C.
	var start int
	if _, err := fmt.Sscanf(rng, "予定表!A%d:C", &start); err != nil {
		return fmt.Errorf("fake: unsupported range %q", rng)
	}
	for i, row := range rows {
		at := start - 1 + i
		for at >= len(f.grid) {
			f.grid = append(f.grid, nil)
		}
		f.grid[at] = append([]string(nil), row...)
	}
	return nil
}

func (f *fakeAPI) Clear(_ context.Context, _ string) error {
	if f.fail != nil {
		return f.fail
	}
	f.grid = f.grid[:1]
	return nil
}

func (f *fakeAPI) BatchDelete(_ context.Context, rowStarts []int) error {
	if f.fail != nil {
		return f.fail
	}
	for _, start := range rowStarts {
		f.deletes = append(f.deletes, start)
		if start < 0 || start >= len(f.grid) {
			return fmt.Errorf("fake: row start %d out of grid", start)
		}
		f.grid = append(f.grid[:start], f.grid[start+1:]...)
	}
	return nil
}

func rec(typ, task, due string) schedule.Record {
	return schedule.Record{Type: typ, Task: task, Due: due}
}

func TestAppendThenListRoundTrip(t *testing.T) {
	api := newFakeAPI()
	r := sheet.NewReconciler(api, "予定表")
	ctx := context.Background()

	n, err := r.Append(ctx, []schedule.Record{rec("課題", "math p10-15", "2025-06-13")})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if n != 1 {
		t.Fatalf("appended %d rows, want 1", n)
	}

	got, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []schedule.Record{rec("課題", "math p10-15", "2025-06-13")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestAppendSkipsTasklessRecords(t *testing.T) {
	api := newFakeAPI()
	r := sheet.NewReconciler(api, "予定表")

	n, err := r.Append(context.Background(), []schedule.Record{
		rec("課題", "", "2025-06-13"),
		rec("", "国語の音読", ""),
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if n != 1 {
		t.Errorf("appended %d rows, want 1", n)
	}
	got, _ := r.List(context.Background())
	want := []schedule.Record{rec(schedule.TypeOther, "国語の音読", schedule.DueUnspecified)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDeleteAtDescendingOrder(t *testing.T) {
	api := newFakeAPI(
		[]string{"課題", "row0", "2025-06-01"},
		[]string{"課題", "row1", "2025-06-02"},
		[]string{"課題", "row2", "2025-06-03"},
		[]string{"課題", "row3", "2025-06-04"},
		[]string{"課題", "row4", "2025-06-05"},
	)
	r := sheet.NewReconciler(api, "予定表")

	n, err := r.DeleteAt(context.Background(), []int{0, 2, 4}, 5)
	if err != nil {
		t.Fatalf("DeleteAt: %v", err)
	}
	if n != 3 {
		t.Errorf("deleted %d rows, want 3", n)
	}

	// Logical indices 4,2,0 → physical row starts 5,3,1, highest first.
	if !reflect.DeepEqual(api.deletes, []int{5, 3, 1}) {
		t.Errorf("delete order %v, want [5 3 1]", api.deletes)
	}

	got, _ := r.List(context.Background())
	want := []schedule.Record{
		rec("課題", "row1", "2025-06-02"),
		rec("課題", "row3", "2025-06-04"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("remaining rows %+v, want rows 1 and 3 in order", got)
	}
}

func TestDeleteAtValidatesIndices(t *testing.T) {
	api := newFakeAPI(
		[]string{"課題", "row0", "2025-06-01"},
		[]string{"課題", "row1", "2025-06-02"},
	)
	r := sheet.NewReconciler(api, "予定表")

	n, err := r.DeleteAt(context.Background(), []int{1, 1, 99}, 2)
	if err != nil {
		t.Fatalf("DeleteAt: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d rows, want 1", n)
	}
	if !reflect.DeepEqual(api.deletes, []int{2}) {
		t.Errorf("delete row starts %v, want [2]", api.deletes)
	}
}

func TestDeleteAtNothingValid(t *testing.T) {
	api := newFakeAPI([]string{"課題", "row0", "2025-06-01"})
	r := sheet.NewReconciler(api, "予定表")

	n, err := r.DeleteAt(context.Background(), []int{5, -1}, 1)
	if err != nil {
		t.Fatalf("DeleteAt: %v", err)
	}
	if n != 0 || len(api.deletes) != 0 {
		t.Errorf("expected no deletions, got %d (%v)", n, api.deletes)
	}
}

func TestUpdateAt(t *testing.T) {
	api := newFakeAPI(
		[]string{"課題", "row0", "2025-06-01"},
		[]string{"課題", "row1", "2025-06-02"},
	)
	r := sheet.NewReconciler(api, "予定表")

	if err := r.UpdateAt(context.Background(), 1, rec("テスト", "english test", "2025-06-20")); err != nil {
		t.Fatalf("UpdateAt: %v", err)
	}
	got, _ := r.List(context.Background())
	if got[1] != rec("テスト", "english test", "2025-06-20") {
		t.Errorf("row 1 = %+v after update", got[1])
	}
	if got[0] != rec("課題", "row0", "2025-06-01") {
		t.Errorf("row 0 changed unexpectedly: %+v", got[0])
	}
}

func TestUpdateAtRejectsEmptyTask(t *testing.T) {
	r := sheet.NewReconciler(newFakeAPI([]string{"課題", "row0", "2025-06-01"}), "予定表")
	if err := r.UpdateAt(context.Background(), 0, rec("課題", "", "2025-06-01")); err == nil {
		t.Error("expected error for empty task")
	}
}

func TestReplaceAll(t *testing.T) {
	api := newFakeAPI(
		[]string{"課題", "old0", "2025-06-01"},
		[]string{"課題", "old1", "2025-06-02"},
		[]string{"課題", "old2", "2025-06-03"},
	)
	r := sheet.NewReconciler(api, "予定表")

	err := r.ReplaceAll(context.Background(), []schedule.Record{rec("テスト", "new0", "2025-07-01")})
	if err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}
	got, _ := r.List(context.Background())
	want := []schedule.Record{rec("テスト", "new0", "2025-07-01")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestStoreFailurePropagates(t *testing.T) {
	api := newFakeAPI([]string{"課題", "row0", "2025-06-01"})
	api.fail = fmt.Errorf("%w: boom", sheet.ErrPermission)
	r := sheet.NewReconciler(api, "予定表")

	if _, err := r.List(context.Background()); !errors.Is(err, sheet.ErrPermission) {
		t.Errorf("List error = %v, want ErrPermission", err)
	}
	if _, err := r.Append(context.Background(), []schedule.Record{rec("課題", "x", "")}); !errors.Is(err, sheet.ErrPermission) {
		t.Errorf("Append error = %v, want ErrPermission", err)
	}
	if _, err := r.DeleteAt(context.Background(), []int{0}, 1); !errors.Is(err, sheet.ErrPermission) {
		t.Errorf("DeleteAt error = %v, want ErrPermission", err)
	}
}
