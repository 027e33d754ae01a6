package sink

import (
	"context"
	"fmt"

	"google.golang.org/api/sheets/v4"

	"ticketsync/internal/errors"
	"ticketsync/internal/ticket"
)

// sheetsBatchRows is the per-request row limit for values writes.
const sheetsBatchRows = 1000

// SheetsSink overwrites a tab in a remote spreadsheet with the supplied
// dataset. The tab is created with a header row when missing; existing
// rows below the header are cleared before the first flush, so re-sending
// the same dataset always converges to the same end state.
type SheetsSink struct {
	svc           *sheets.Service
	spreadsheetID string
	tab           string

	prepared bool
	nextRow  int // 1-based sheet row for the next flush
	written  int
	pending  []ticket.Row
}

// NewSheets creates a sink targeting one tab of one spreadsheet document.
func NewSheets(svc *sheets.Service, spreadsheetID, tab string) *SheetsSink {
	return &SheetsSink{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		tab:           tab,
		nextRow:       2,
	}
}

// Written returns the number of rows flushed to the remote tab so far.
func (s *SheetsSink) Written() int {
	return s.written
}

// Add buffers rows, flushing a full API batch at a time.
func (s *SheetsSink) Add(ctx context.Context, rows ...ticket.Row) error {
	s.pending = append(s.pending, rows...)
	for len(s.pending) >= sheetsBatchRows {
		batch := s.pending[:sheetsBatchRows]
		s.pending = s.pending[sheetsBatchRows:]
		if err := s.flush(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes remaining rows. An empty dataset still clears the tab
// below the header.
func (s *SheetsSink) Close(ctx context.Context) error {
	if err := s.flush(ctx, s.pending); err != nil {
		return err
	}
	s.pending = nil
	if !s.prepared {
		return s.prepare(ctx)
	}
	return nil
}

// flush writes one batch as a single values.update call.
func (s *SheetsSink) flush(ctx context.Context, batch []ticket.Row) error {
	if len(batch) == 0 {
		return nil
	}
	if !s.prepared {
		if err := s.prepare(ctx); err != nil {
			return err
		}
	}

	values := make([][]any, len(batch))
	for i, row := range batch {
		record := row.Record()
		cells := make([]any, len(record))
		for j, v := range record {
			cells[j] = v
		}
		values[i] = cells
	}

	endRow := s.nextRow + len(batch) - 1
	rng := fmt.Sprintf("'%s'!A%d:%s%d", s.tab, s.nextRow, colLetter(len(ticket.Headers)), endRow)
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return errors.NewSinkWrite(s.destination(), err)
	}

	s.nextRow = endRow + 1
	s.written += len(batch)
	return nil
}

// prepare ensures the tab exists, rewrites the header, and clears every
// row below it.
func (s *SheetsSink) prepare(ctx context.Context) error {
	meta, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return errors.NewSinkWrite(s.destination(), err)
	}

	exists := false
	for _, sh := range meta.Sheets {
		if sh.Properties != nil && sh.Properties.Title == s.tab {
			exists = true
			break
		}
	}
	if !exists {
		_, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: s.tab},
				},
			}},
		}).Context(ctx).Do()
		if err != nil {
			return errors.NewSinkWrite(s.destination(), err)
		}
	}

	header := make([]any, len(ticket.Headers))
	for i, h := range ticket.Headers {
		header[i] = h
	}
	headerRng := fmt.Sprintf("'%s'!A1:%s1", s.tab, colLetter(len(ticket.Headers)))
	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, headerRng, &sheets.ValueRange{
		Values: [][]any{header},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return errors.NewSinkWrite(s.destination(), err)
	}

	clearRng := fmt.Sprintf("'%s'!A2:%s", s.tab, colLetter(len(ticket.Headers)))
	_, err = s.svc.Spreadsheets.Values.Clear(s.spreadsheetID, clearRng, &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return errors.NewSinkWrite(s.destination(), err)
	}

	s.prepared = true
	return nil
}

func (s *SheetsSink) destination() string {
	return fmt.Sprintf("sheet %s!%s", s.spreadsheetID, s.tab)
}

// colLetter converts a 1-based column number to its A1 letter (1 -> A,
// 27 -> AA).
func colLetter(n int) string {
	s := ""
	for n > 0 {
		n--
		s = string(rune('A'+n%26)) + s
		n /= 26
	}
	if s == "" {
		return "A"
	}
	return s
}
