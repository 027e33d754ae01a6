// Package merge reconciles freshly fetched rows into a persistent dataset
// with insert-or-update semantics keyed by ticket id.
package merge

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"ticketsync/internal/errors"
	"ticketsync/internal/ticket"
)

// Stats summarizes one merge operation.
type Stats struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

// Rows merges incoming rows into existing ones. For each incoming row: a
// matching id is replaced in place, a new id is appended at the end.
// Untouched rows keep their positions; ids absent from the batch are never
// deleted. When a batch carries the same id twice, the last occurrence wins.
func Rows(existing, incoming []ticket.Row) ([]ticket.Row, Stats) {
	merged := make([]ticket.Row, len(existing))
	copy(merged, existing)

	index := make(map[int64]int, len(merged))
	for i, row := range merged {
		index[row.ID] = i
	}

	var stats Stats
	for _, row := range incoming {
		if pos, ok := index[row.ID]; ok {
			merged[pos] = row
			stats.Updated++
			continue
		}
		index[row.ID] = len(merged)
		merged = append(merged, row)
		stats.Inserted++
	}

	return merged, stats
}

// IntoCSV merges incoming rows into the persistent CSV dataset at path,
// serialized per destination. An absent file is treated as an empty dataset.
// The updated dataset is written to a temp file and renamed into place so a
// failed write never corrupts the existing data.
func IntoCSV(path string, incoming []ticket.Row) (Stats, error) {
	unlock := LockDestination(path)
	defer unlock()

	existing, skipped, err := readCSVLocked(path)
	if err != nil {
		return Stats{}, err
	}

	merged, stats := Rows(existing, incoming)
	stats.Skipped += skipped

	if err := writeCSVLocked(path, merged); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// ReadCSV loads a persistent dataset. An absent file yields an empty
// dataset; unreadable rows are skipped with a warning and counted.
func ReadCSV(path string) ([]ticket.Row, int, error) {
	unlock := LockDestination(path)
	defer unlock()
	return readCSVLocked(path)
}

func readCSVLocked(path string) ([]ticket.Row, int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, errors.NewInternal(fmt.Errorf("opening dataset: %w", err))
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	// First row is the header.
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return nil, 0, nil
		}
		return nil, 0, errors.NewInternal(fmt.Errorf("reading dataset header: %w", err))
	}

	var rows []ticket.Row
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, errors.NewInternal(fmt.Errorf("reading dataset: %w", err))
		}
		row, err := ticket.FromRecord(record)
		if err != nil {
			log.Printf("warn: skipping unreadable dataset row: %v", err)
			skipped++
			continue
		}
		rows = append(rows, row)
	}
	return rows, skipped, nil
}

// writeCSVLocked writes the full dataset atomically: temp file in the same
// directory, fsync, rename over the destination.
func writeCSVLocked(path string, rows []ticket.Row) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewSinkWrite(path, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.NewSinkWrite(path, err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	writer := csv.NewWriter(tmp)
	if err := writer.Write(ticket.Headers); err != nil {
		return errors.NewSinkWrite(path, err)
	}
	for _, row := range rows {
		if err := writer.Write(row.Record()); err != nil {
			return errors.NewSinkWrite(path, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return errors.NewSinkWrite(path, err)
	}

	if err := tmp.Sync(); err != nil {
		return errors.NewSinkWrite(path, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewSinkWrite(path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.NewSinkWrite(path, err)
	}
	success = true
	return nil
}
