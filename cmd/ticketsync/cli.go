package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"ticketsync/internal/errors"
	"ticketsync/internal/ops"
)

// defaultRedirectURI is the out-of-band flow: Google shows the code for the
// user to paste back.
const defaultRedirectURI = "urn:ietf:wg:oauth:2.0:oob"

// newCLIApp creates the CLI application with all commands.
func newCLIApp(deps *ops.Deps) *cli.App {
	app := &cli.App{
		Name:    "ticketsync",
		Usage:   "Sync Zendesk tickets to CSV, Excel, and Google Sheets",
		Version: Version,
		Commands: []*cli.Command{
			exportCmd(deps),
			syncCmd(deps),
			pushCmd(deps),
			gapfillCmd(deps),
			connectCmd(deps),
			disconnectCmd(deps),
			statusCmd(deps),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// exportCmd creates the export command.
func exportCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Fetch all tickets and write a fresh export file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "Export format: csv|xlsx (default: configured format)"},
			&cli.BoolFlag{Name: "append", Usage: "Append to today's export file instead of creating a new one (csv only)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.FullExport(c.Context, deps, ops.FullExportInput{
				Format: c.String("format"),
				Append: c.Bool("append"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// syncCmd creates the sync command.
func syncCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Fetch recently updated tickets and merge them into the dataset",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "window", Aliases: []string{"w"}, Usage: "Lookback window, e.g. 48h (default: 24h)"},
			&cli.StringFlag{Name: "since", Usage: "Explicit lower bound, RFC3339 (overrides --window)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.IncrementalSyncInput{
				Window: c.Duration("window"),
			}
			if s := c.String("since"); s != "" {
				since, err := time.Parse(time.RFC3339, s)
				if err != nil {
					return outputError(errors.NewInvalidRequest("since must be RFC3339, e.g. 2024-03-01T00:00:00Z"))
				}
				input.Since = &since
			}

			output, err := ops.IncrementalSync(c.Context, deps, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// pushCmd creates the push command.
func pushCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "push",
		Usage: "Overwrite a Google Sheets tab with the full dataset",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "sheet", Usage: "Spreadsheet id (default: configured sheet)"},
			&cli.StringFlag{Name: "tab", Usage: "Tab name (default: configured tab)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.PushSheet(c.Context, deps, ops.PushSheetInput{
				SpreadsheetID: c.String("sheet"),
				Tab:           c.String("tab"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// gapfillCmd creates the gapfill command.
func gapfillCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "gapfill",
		Usage: "Fetch tickets missing from the dataset by id",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "max-ids", Usage: "Cap on ids probed per run (default: 2000)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.GapFill(c.Context, deps, ops.GapFillInput{
				MaxIDs: c.Int("max-ids"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// connectCmd creates the connect command.
func connectCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "connect",
		Usage: "Connect a Google identity (prints the authorization URL, then exchange with --code)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "code", Usage: "Authorization code from the consent screen"},
			&cli.StringFlag{Name: "redirect-uri", Value: defaultRedirectURI, Usage: "OAuth redirect URI"},
		},
		Action: func(c *cli.Context) error {
			if err := deps.Cfg.RequireGoogle(); err != nil {
				return outputError(err)
			}

			redirectURI := c.String("redirect-uri")
			code := c.String("code")
			if code == "" {
				return outputJSON(map[string]string{
					"auth_url": deps.Auth.AuthURL("state", redirectURI),
				})
			}

			if err := deps.Auth.Exchange(c.Context, code, redirectURI); err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]string{
				"state": string(deps.Auth.State()),
			})
		},
	}
}

// disconnectCmd creates the disconnect command.
func disconnectCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "disconnect",
		Usage: "Forget the connected Google identity",
		Action: func(c *cli.Context) error {
			if err := deps.Auth.Disconnect(); err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]string{
				"state": string(deps.Auth.State()),
			})
		},
	}
}

// statusCmd creates the status command.
func statusCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show integration health and dataset size",
		Action: func(c *cli.Context) error {
			output, err := ops.Status(c.Context, deps)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if syncErr, ok := err.(*errors.SyncError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", syncErr.Code, syncErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
