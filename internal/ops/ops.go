package ops

import (
	"crypto/rand"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"google.golang.org/api/sheets/v4"

	"ticketsync/internal/config"
	"ticketsync/internal/errors"
	"ticketsync/internal/gauth"
	"ticketsync/internal/ticket"
	"ticketsync/internal/zendesk"
)

// DatasetFile is the persistent dataset maintained by incremental syncs.
const DatasetFile = "tickets_all.csv"

// Deps bundles the shared dependencies the operations run against.
// Sheets is optional; when nil, a service is built from Auth on demand.
type Deps struct {
	Cfg    *config.Config
	Client *zendesk.Client
	Auth   *gauth.Manager
	Sheets *sheets.Service
}

// DatasetPath returns the location of the persistent dataset.
func (d *Deps) DatasetPath() string {
	return filepath.Join(d.Cfg.ExportDir, DatasetFile)
}

// newRunID generates a ULID identifying one operation run.
func newRunID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", errors.NewInternal(fmt.Errorf("failed to generate run id: %w", err))
	}
	return id.String(), nil
}

// drainStream consumes a ticket stream to exhaustion, normalizing each
// record. Malformed records are skipped and counted, never fatal. The
// returned error is the stream's terminal error, if any; rows normalized
// before the failure are still returned.
func drainStream(stream *zendesk.TicketStream) (rows []ticket.Row, skipped int, err error) {
	for stream.Next() {
		row, nerr := ticket.Normalize(stream.Ticket())
		if nerr != nil {
			log.Printf("warning: skipping record: %v", nerr)
			skipped++
			continue
		}
		rows = append(rows, row)
	}
	return rows, skipped, stream.Err()
}
