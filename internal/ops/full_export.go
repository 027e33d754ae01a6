package ops

import (
	"context"

	"ticketsync/internal/errors"
	"ticketsync/internal/sink"
	"ticketsync/internal/zendesk"
)

// FullExportInput contains parameters for the FullExport operation.
type FullExportInput struct {
	Format string // "csv" or "xlsx"; empty uses the configured default
	Append bool   // csv only: append to today's export instead of creating a new file
}

// FullExportOutput contains the result of the FullExport operation.
type FullExportOutput struct {
	RunID      string `json:"run_id"`
	Format     string `json:"format"`
	Path       string `json:"path"`
	Fetched    int    `json:"fetched"`
	Written    int    `json:"written"`
	Skipped    int    `json:"skipped"`
	Pages      int    `json:"pages"`
	FetchError string `json:"fetch_error,omitempty"`
}

// FullExport fetches every ticket upstream and writes a fresh timestamped
// export file. A fetch failure partway through still produces a file with
// the pages fetched so far; the output carries the fetch error alongside.
func FullExport(ctx context.Context, deps *Deps, input FullExportInput) (*FullExportOutput, error) {
	if err := deps.Cfg.RequireZendesk(); err != nil {
		return nil, err
	}

	format := input.Format
	if format == "" {
		format = deps.Cfg.ExportFormat
	}
	if format != "csv" && format != "xlsx" {
		return nil, errors.NewInvalidRequest("format must be csv or xlsx")
	}
	if input.Append && format != "csv" {
		return nil, errors.NewInvalidRequest("append is only supported for csv exports")
	}

	runID, err := newRunID()
	if err != nil {
		return nil, err
	}

	stream := deps.Client.Stream(ctx, zendesk.Query{})
	rows, skipped, fetchErr := drainStream(stream)
	if fetchErr != nil && len(rows) == 0 {
		return nil, fetchErr
	}

	var (
		out  sink.Sink
		path func() string
	)
	switch format {
	case "csv":
		mode := sink.CSVModeCreate
		if input.Append {
			mode = sink.CSVModeAppend
		}
		s := sink.NewCSV(deps.Cfg.ExportDir, mode, deps.Cfg.SinkBatchSize)
		out, path = s, s.Path
	case "xlsx":
		s := sink.NewXLSX(deps.Cfg.ExportDir, deps.Cfg.SinkBatchSize)
		out, path = s, s.Path
	}

	if err := out.Add(ctx, rows...); err != nil {
		return nil, err
	}
	if err := out.Close(ctx); err != nil {
		return nil, err
	}

	result := &FullExportOutput{
		RunID:   runID,
		Format:  format,
		Path:    path(),
		Fetched: len(rows),
		Written: len(rows),
		Skipped: skipped,
		Pages:   stream.Pages(),
	}
	if fetchErr != nil {
		result.FetchError = fetchErr.Error()
	}
	return result, nil
}
