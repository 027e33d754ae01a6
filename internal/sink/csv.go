package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ticketsync/internal/errors"
	"ticketsync/internal/ticket"
)

// CSVMode selects the file naming and header behavior.
type CSVMode string

const (
	// CSVModeCreate always produces a freshly named, timestamped file
	// containing exactly the rows written, with a header row.
	CSVModeCreate CSVMode = "create-new"

	// CSVModeAppend appends to the current day's file when it exists,
	// skipping the header; otherwise it behaves like CSVModeCreate with a
	// date-stamped name.
	CSVModeAppend CSVMode = "append-existing"
)

// CSVSink writes rows to a local delimited file.
type CSVSink struct {
	dir       string
	mode      CSVMode
	batchSize int
	clock     func() time.Time

	path    string
	file    *os.File
	writer  *csv.Writer
	pending []ticket.Row
}

// NewCSV creates a CSV sink writing into dir. batchSize <= 0 uses the
// default.
func NewCSV(dir string, mode CSVMode, batchSize int) *CSVSink {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &CSVSink{
		dir:       dir,
		mode:      mode,
		batchSize: batchSize,
		clock:     time.Now,
	}
}

// Path returns the destination file path. Empty until the first flush in
// create mode.
func (s *CSVSink) Path() string {
	return s.path
}

// Add buffers rows, flushing whenever the batch threshold is reached.
func (s *CSVSink) Add(ctx context.Context, rows ...ticket.Row) error {
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

// Close flushes remaining rows and finalizes the file. A create-mode sink
// that never received rows still produces a header-only file.
func (s *CSVSink) Close(ctx context.Context) error {
	if err := s.flush(s.pending); err != nil {
		return err
	}
	s.pending = nil

	if s.file == nil {
		if err := s.open(); err != nil {
			return err
		}
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return errors.NewSinkWrite(s.path, err)
	}
	if err := s.file.Sync(); err != nil {
		return errors.NewSinkWrite(s.path, err)
	}
	if err := s.file.Close(); err != nil {
		return errors.NewSinkWrite(s.path, err)
	}
	s.file = nil
	return nil
}

func (s *CSVSink) flush(batch []ticket.Row) error {
	if len(batch) == 0 {
		return nil
	}
	if s.file == nil {
		if err := s.open(); err != nil {
			return err
		}
	}
	for _, row := range batch {
		if err := s.writer.Write(row.Record()); err != nil {
			return errors.NewSinkWrite(s.path, err)
		}
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return errors.NewSinkWrite(s.path, err)
	}
	return nil
}

// open creates or opens the destination file and writes the header when
// the file is new.
func (s *CSVSink) open() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.NewSinkWrite(s.dir, err)
	}

	now := s.clock()
	writeHeader := true
	switch s.mode {
	case CSVModeAppend:
		s.path = filepath.Join(s.dir, fmt.Sprintf("tickets_%s.csv", now.Format("20060102")))
		if _, err := os.Stat(s.path); err == nil {
			writeHeader = false
		}
		f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.NewSinkWrite(s.path, err)
		}
		s.file = f
	default:
		s.path = filepath.Join(s.dir, fmt.Sprintf("tickets_%s.csv", now.Format("20060102_150405")))
		f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			return errors.NewSinkWrite(s.path, err)
		}
		s.file = f
	}

	s.writer = csv.NewWriter(s.file)
	if writeHeader {
		if err := s.writer.Write(ticket.Headers); err != nil {
			return errors.NewSinkWrite(s.path, err)
		}
	}
	return nil
}
