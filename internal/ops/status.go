package ops

import (
	"context"

	"ticketsync/internal/merge"
)

// StatusOutput describes the health of the configured integrations and the
// persistent dataset.
type StatusOutput struct {
	Zendesk     string `json:"zendesk"` // "ok", "unconfigured", or an error message
	Google      string `json:"google"`  // credential lifecycle state
	DatasetPath string `json:"dataset_path"`
	DatasetRows int    `json:"dataset_rows"`
}

// Status probes the Zendesk connection, reports the Google credential state,
// and counts the persistent dataset.
func Status(ctx context.Context, deps *Deps) (*StatusOutput, error) {
	out := &StatusOutput{
		Google:      string(deps.Auth.State()),
		DatasetPath: deps.DatasetPath(),
	}

	if err := deps.Cfg.RequireZendesk(); err != nil {
		out.Zendesk = "unconfigured"
	} else if err := deps.Client.TestConnection(ctx); err != nil {
		out.Zendesk = err.Error()
	} else {
		out.Zendesk = "ok"
	}

	rows, _, err := merge.ReadCSV(deps.DatasetPath())
	if err != nil {
		return nil, err
	}
	out.DatasetRows = len(rows)
	return out, nil
}
