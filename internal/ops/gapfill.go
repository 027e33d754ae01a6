package ops

import (
	"context"
	"log"

	"ticketsync/internal/merge"
	"ticketsync/internal/ticket"
)

// MaxGapFillIDs caps the number of missing ids probed in one run.
const MaxGapFillIDs = 2000

// GapFillInput contains parameters for the GapFill operation.
type GapFillInput struct {
	MaxIDs int // cap on ids probed; default MaxGapFillIDs
}

// GapFillOutput contains the result of the GapFill operation.
type GapFillOutput struct {
	RunID      string `json:"run_id"`
	Path       string `json:"path"`
	Missing    int    `json:"missing"`
	Probed     int    `json:"probed"`
	Recovered  int    `json:"recovered"`
	Inserted   int    `json:"inserted"`
	Truncated  bool   `json:"truncated"`
	FetchError string `json:"fetch_error,omitempty"`
}

// GapFill finds ticket ids absent from the dataset below its highest known
// id and fetches them individually. Ids that no longer exist upstream are
// left as gaps. A fetch failure partway through still merges the tickets
// recovered so far; the output carries the fetch error alongside.
func GapFill(ctx context.Context, deps *Deps, input GapFillInput) (*GapFillOutput, error) {
	if err := deps.Cfg.RequireZendesk(); err != nil {
		return nil, err
	}

	runID, err := newRunID()
	if err != nil {
		return nil, err
	}

	path := deps.DatasetPath()
	existing, _, err := merge.ReadCSV(path)
	if err != nil {
		return nil, err
	}

	missing := missingIDs(existing)
	result := &GapFillOutput{
		RunID:   runID,
		Path:    path,
		Missing: len(missing),
	}

	maxIDs := input.MaxIDs
	if maxIDs <= 0 {
		maxIDs = MaxGapFillIDs
	}
	if len(missing) > maxIDs {
		missing = missing[:maxIDs]
		result.Truncated = true
	}

	var recovered []ticket.Row
	var fetchErr error
	for _, id := range missing {
		raw, err := deps.Client.GetTicket(ctx, id)
		if err != nil {
			fetchErr = err
			break
		}
		result.Probed++
		if raw == nil {
			continue
		}
		row, err := ticket.Normalize(*raw)
		if err != nil {
			log.Printf("warning: skipping record: %v", err)
			continue
		}
		recovered = append(recovered, row)
	}
	if fetchErr != nil && len(recovered) == 0 {
		return nil, fetchErr
	}

	if len(recovered) > 0 {
		stats, err := merge.IntoCSV(path, recovered)
		if err != nil {
			return nil, err
		}
		result.Inserted = stats.Inserted
	}
	result.Recovered = len(recovered)
	if fetchErr != nil {
		result.FetchError = fetchErr.Error()
	}
	return result, nil
}

// missingIDs returns the ids absent from rows in [1, maxID), ascending.
func missingIDs(rows []ticket.Row) []int64 {
	present := make(map[int64]bool, len(rows))
	var maxID int64
	for _, r := range rows {
		present[r.ID] = true
		if r.ID > maxID {
			maxID = r.ID
		}
	}

	var missing []int64
	for id := int64(1); id < maxID; id++ {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
