package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"ticketsync/internal/errors"
	"ticketsync/internal/ticket"
)

// xlsxSheetName is the single sheet holding the exported rows.
const xlsxSheetName = "Tickets"

// xlsxMaxColWidth caps auto-sized column widths.
const xlsxMaxColWidth = 50

// XLSXSink writes rows to a local spreadsheet file. Always creates a new
// file; the format does not support appending in place.
type XLSXSink struct {
	dir       string
	batchSize int
	clock     func() time.Time

	path      string
	file      *excelize.File
	nextRow   int
	colWidths []float64
	pending   []ticket.Row
}

// NewXLSX creates an XLSX sink writing into dir.
func NewXLSX(dir string, batchSize int) *XLSXSink {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &XLSXSink{
		dir:       dir,
		batchSize: batchSize,
		clock:     time.Now,
	}
}

// Path returns the destination file path. Empty until Close.
func (s *XLSXSink) Path() string {
	return s.path
}

// Add buffers rows, flushing whenever the batch threshold is reached.
func (s *XLSXSink) Add(ctx context.Context, rows ...ticket.Row) error {
	s.pending = append(s.pending, rows...)
	for len(s.pending) >= s.batchSize {
		batch := s.pending[:s.batchSize]
		s.pending = s.pending[s.batchSize:]
		if err := s.flush(batch); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes remaining rows, sizes the columns, and saves the file.
func (s *XLSXSink) Close(ctx context.Context) error {
	if err := s.flush(s.pending); err != nil {
		return err
	}
	s.pending = nil

	if s.file == nil {
		if err := s.create(); err != nil {
			return err
		}
	}
	defer s.file.Close()

	for i, width := range s.colWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return errors.NewSinkWrite(s.path, err)
		}
		w := width + 2
		if w > xlsxMaxColWidth {
			w = xlsxMaxColWidth
		}
		if err := s.file.SetColWidth(xlsxSheetName, col, col, w); err != nil {
			return errors.NewSinkWrite(s.path, err)
		}
	}

	if err := s.file.SaveAs(s.path); err != nil {
		return errors.NewSinkWrite(s.path, err)
	}
	return nil
}

func (s *XLSXSink) flush(batch []ticket.Row) error {
	if len(batch) == 0 {
		return nil
	}
	if s.file == nil {
		if err := s.create(); err != nil {
			return err
		}
	}
	for _, row := range batch {
		record := row.Record()
		cells := make([]any, len(record))
		for i, v := range record {
			cells[i] = v
			s.trackWidth(i, len(v))
		}
		cell, err := excelize.CoordinatesToCellName(1, s.nextRow)
		if err != nil {
			return errors.NewSinkWrite(s.path, err)
		}
		if err := s.file.SetSheetRow(xlsxSheetName, cell, &cells); err != nil {
			return errors.NewSinkWrite(s.path, err)
		}
		s.nextRow++
	}
	return nil
}

// create initializes the workbook with a styled header row.
func (s *XLSXSink) create() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.NewSinkWrite(s.dir, err)
	}
	s.path = filepath.Join(s.dir, fmt.Sprintf("tickets_%s.xlsx", s.clock().Format("20060102_150405")))

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", xlsxSheetName); err != nil {
		return errors.NewSinkWrite(s.path, err)
	}

	header := make([]any, len(ticket.Headers))
	for i, h := range ticket.Headers {
		header[i] = h
		s.trackWidth(i, len(h))
	}
	if err := f.SetSheetRow(xlsxSheetName, "A1", &header); err != nil {
		return errors.NewSinkWrite(s.path, err)
	}

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"CCCCCC"}, Pattern: 1},
	})
	if err != nil {
		return errors.NewSinkWrite(s.path, err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(ticket.Headers))
	if err != nil {
		return errors.NewSinkWrite(s.path, err)
	}
	if err := f.SetCellStyle(xlsxSheetName, "A1", lastCol+"1", style); err != nil {
		return errors.NewSinkWrite(s.path, err)
	}

	s.file = f
	s.nextRow = 2
	return nil
}

func (s *XLSXSink) trackWidth(col, length int) {
	for len(s.colWidths) <= col {
		s.colWidths = append(s.colWidths, 0)
	}
	if w := float64(length); w > s.colWidths[col] {
		s.colWidths[col] = w
	}
}
