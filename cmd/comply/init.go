package main

import (
	"context"
	"fmt"
	"os"

	"github.com/complypilot/comply-core/internal/infrastructure/config"
	"github.com/complypilot/comply-core/internal/infrastructure/store/sqlite"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a comply workspace in the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.Context())
		},
	}
}

func runInit(ctx context.Context) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	if config.Exists(cwd) {
		fmt.Printf("Workspace already initialized at %s\n", config.ConfigDir(cwd))
		return nil
	}

	cfg := config.Default()
	cfg.SQLite.Path = config.DatabasePath(cwd)
	if err := cfg.Write(cwd); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	store, err := sqlite.NewRepository(cfg.SQLite)
	if err != nil {
		return fmt.Errorf("creating sqlite store: %w", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	fmt.Printf("Initialized comply workspace at %s\n", config.ConfigDir(cwd))
	return nil
}
