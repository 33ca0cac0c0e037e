// Package sheet persists schedule records in a Google Sheets spreadsheet
// and applies index-based mutations against it.
//
// The sheet is a plain three-column table (種別, 内容, 期限) with one header
// row, so logical record index 0 lives in physical row 2.  The package is
// split in two layers: API is the thin range-addressed transport to the
// spreadsheet service, and Reconciler maps logical record operations onto
// it.
package sheet

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Typed store failure kinds.  The reconciler maps transport errors onto
// these so callers can phrase user-visible messages without inspecting
// Google API internals.
var (
	// ErrUnavailable covers network failures and 5xx responses.
	ErrUnavailable = errors.New("sheet: store unavailable")
	// ErrPermission covers rejected credentials and missing share access.
	ErrPermission = errors.New("sheet: permission denied")
	// ErrNotFound covers an unknown spreadsheet ID or missing sheet tab.
	ErrNotFound = errors.New("sheet: not found")
)

// API is the row-oriented transport the reconciler drives.  Ranges use A1
// notation; rows are raw string cells.  Implementations must be safe for
// concurrent use.
type API interface {
	// Get returns the rows in rng.  An empty range yields an empty slice.
	Get(ctx context.Context, rng string) ([][]string, error)
	// Append appends rows after the last data row of the table containing rng.
	Append(ctx context.Context, rng string, rows [][]string) error
	// Update overwrites exactly the cells of rng with rows.
	Update(ctx context.Context, rng string, rows [][]string) error
	// Clear empties the cells of rng without removing the rows.
	Clear(ctx context.Context, rng string) error
	// BatchDelete removes whole physical rows.  rowStarts are 0-based
	// physical row indices; each request removes the single row
	// [start, start+1).  Requests are issued in the order given.
	BatchDelete(ctx context.Context, rowStarts []int) error
}

// Config configures the Sheets-backed API.
type Config struct {
	// SpreadsheetID is the target spreadsheet.
	SpreadsheetID string
	// SheetTitle is the tab holding the schedule table.
	SheetTitle string
	// CredentialsJSON is the Google service-account key used for access.
	CredentialsJSON []byte
}

// sheetsAPI implements API against the Google Sheets v4 service.
type sheetsAPI struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetTitle    string
}

// NewAPI builds a Sheets-backed API authenticated via the service-account
// JWT flow.  The service holds no mutable state; construct once and share.
func NewAPI(ctx context.Context, cfg Config) (API, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("sheet: spreadsheet ID must not be empty")
	}
	jwt, err := google.JWTConfigFromJSON(cfg.CredentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("sheet: parse service-account credentials: %w", err)
	}
	svc, err := sheets.NewService(ctx, option.WithHTTPClient(jwt.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("sheet: create sheets service: %w", err)
	}
	return &sheetsAPI{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetTitle:    cfg.SheetTitle,
	}, nil
}

func (a *sheetsAPI) Get(ctx context.Context, rng string) ([][]string, error) {
	resp, err := a.svc.Spreadsheets.Values.Get(a.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("get", err)
	}
	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, 0, len(raw))
		for _, cell := range raw {
			row = append(row, fmt.Sprint(cell))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (a *sheetsAPI) Append(ctx context.Context, rng string, rows [][]string) error {
	_, err := a.svc.Spreadsheets.Values.
		Append(a.spreadsheetID, rng, valueRange(rows)).
		ValueInputOption("USER_ENTERED").
		Context(ctx).Do()
	if err != nil {
		return wrapAPIError("append", err)
	}
	return nil
}

func (a *sheetsAPI) Update(ctx context.Context, rng string, rows [][]string) error {
	_, err := a.svc.Spreadsheets.Values.
		Update(a.spreadsheetID, rng, valueRange(rows)).
		ValueInputOption("USER_ENTERED").
		Context(ctx).Do()
	if err != nil {
		return wrapAPIError("update", err)
	}
	return nil
}

func (a *sheetsAPI) Clear(ctx context.Context, rng string) error {
	_, err := a.svc.Spreadsheets.Values.
		Clear(a.spreadsheetID, rng, &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return wrapAPIError("clear", err)
	}
	return nil
}

func (a *sheetsAPI) BatchDelete(ctx context.Context, rowStarts []int) error {
	if len(rowStarts) == 0 {
		return nil
	}
	gid, err := a.sheetID(ctx)
	if err != nil {
		return err
	}
	requests := make([]*sheets.Request, 0, len(rowStarts))
	for _, start := range rowStarts {
		requests = append(requests, &sheets.Request{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    gid,
					Dimension:  "ROWS",
					StartIndex: int64(start),
					EndIndex:   int64(start + 1),
				},
			},
		})
	}
	_, err = a.svc.Spreadsheets.
		BatchUpdate(a.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).
		Context(ctx).Do()
	if err != nil {
		return wrapAPIError("batch delete", err)
	}
	return nil
}

// sheetID resolves the numeric grid ID of the configured tab.
func (a *sheetsAPI) sheetID(ctx context.Context) (int64, error) {
	meta, err := a.svc.Spreadsheets.Get(a.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, wrapAPIError("lookup sheet", err)
	}
	for _, s := range meta.Sheets {
		if s.Properties != nil && s.Properties.Title == a.sheetTitle {
			return s.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("%w: sheet tab %q", ErrNotFound, a.sheetTitle)
}

func valueRange(rows [][]string) *sheets.ValueRange {
	values := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		cells := make([]interface{}, 0, len(row))
		for _, cell := range row {
			cells = append(cells, cell)
		}
		values = append(values, cells)
	}
	return &sheets.ValueRange{Values: values}
}

// wrapAPIError maps a Google API error onto the package's failure kinds.
func wrapAPIError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusForbidden || apiErr.Code == http.StatusUnauthorized:
			return fmt.Errorf("%w: %s: %v", ErrPermission, op, err)
		case apiErr.Code == http.StatusNotFound:
			return fmt.Errorf("%w: %s: %v", ErrNotFound, op, err)
		case apiErr.Code >= 500:
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
		}
		return fmt.Errorf("sheet: %s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// Retryable reports whether err is worth retrying: transient store
// unavailability, but not permission or addressing failures.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
