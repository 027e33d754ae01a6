package main

import (
	"fmt"
	"os"

	"ticketsync/internal/config"
	"ticketsync/internal/gauth"
	"ticketsync/internal/ops"
	"ticketsync/internal/zendesk"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	auth, err := gauth.NewManager(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load credentials: %v\n", err)
		os.Exit(1)
	}

	deps := &ops.Deps{
		Cfg:    cfg,
		Client: zendesk.NewClient(cfg),
		Auth:   auth,
	}

	app := newCLIApp(deps)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
