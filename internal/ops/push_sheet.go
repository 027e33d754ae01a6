package ops

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"ticketsync/internal/errors"
	"ticketsync/internal/merge"
	"ticketsync/internal/sink"
)

// PushSheetInput contains parameters for the PushSheet operation.
type PushSheetInput struct {
	SpreadsheetID string // default: configured sheet id
	Tab           string // default: configured tab name
}

// PushSheetOutput contains the result of the PushSheet operation.
type PushSheetOutput struct {
	RunID         string `json:"run_id"`
	SpreadsheetID string `json:"spreadsheet_id"`
	Tab           string `json:"tab"`
	Rows          int    `json:"rows"`
	Skipped       int    `json:"skipped"`
}

// PushSheet overwrites the target spreadsheet tab with the full persistent
// dataset. Requires a connected Google identity. Pushes to the same tab are
// serialized, so the tab never interleaves rows from two runs.
func PushSheet(ctx context.Context, deps *Deps, input PushSheetInput) (*PushSheetOutput, error) {
	if err := deps.Cfg.RequireGoogle(); err != nil {
		return nil, err
	}
	if !deps.Auth.Connected() {
		return nil, errors.NewNotConnected()
	}

	spreadsheetID := input.SpreadsheetID
	if spreadsheetID == "" {
		spreadsheetID = deps.Cfg.SheetID
	}
	tab := input.Tab
	if tab == "" {
		tab = deps.Cfg.SheetName
	}

	runID, err := newRunID()
	if err != nil {
		return nil, err
	}

	rows, skipped, err := merge.ReadCSV(deps.DatasetPath())
	if err != nil {
		return nil, err
	}

	svc := deps.Sheets
	if svc == nil {
		svc, err = sheets.NewService(ctx, option.WithTokenSource(deps.Auth.TokenSource(ctx)))
		if err != nil {
			return nil, errors.NewInternal(fmt.Errorf("building sheets service: %w", err))
		}
	}

	unlock := merge.LockDestination("sheet:" + spreadsheetID + ":" + tab)
	defer unlock()

	out := sink.NewSheets(svc, spreadsheetID, tab)
	if err := out.Add(ctx, rows...); err != nil {
		return nil, err
	}
	if err := out.Close(ctx); err != nil {
		return nil, err
	}

	return &PushSheetOutput{
		RunID:         runID,
		SpreadsheetID: spreadsheetID,
		Tab:           tab,
		Rows:          out.Written(),
		Skipped:       skipped,
	}, nil
}
