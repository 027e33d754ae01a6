// Package sink persists normalized rows to a destination: a delimited
// file, a local spreadsheet file, or a remote spreadsheet tab. All
// variants buffer rows and flush in batches.
package sink

import (
	"context"

	"ticketsync/internal/ticket"
)

// DefaultBatchSize is the row count that triggers a flush.
const DefaultBatchSize = 500

// Sink receives normalized rows. Add may flush internally once the batch
// threshold is reached; Close flushes the remainder and finalizes the
// destination. A sink that returned success for a flush guarantees those
// rows are present at the destination.
type Sink interface {
	Add(ctx context.Context, rows ...ticket.Row) error
	Close(ctx context.Context) error
}
