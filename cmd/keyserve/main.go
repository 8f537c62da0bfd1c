// Command keyserve runs the MCR license key server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mcrsoft/keyserve/internal/app"
	"github.com/mcrsoft/keyserve/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "keyserve: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	return application.Run(context.Background())
}
