package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/carelink/internal/app"
	"github.com/jwalitptl/carelink/internal/config"
	"github.com/jwalitptl/carelink/internal/repository"
	"github.com/jwalitptl/carelink/pkg/logger"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "carectl",
		Short:         "Operator tooling for the care relationship service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "path to config.yml")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(routeCmd())
	rootCmd.AddCommand(grantRoleCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(outboxCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env is what a store-backed command runs against.
type env struct {
	cfg   *config.Config
	log   *logger.Logger
	store repository.Store
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func withStore(cmd *cobra.Command, fn func(ctx context.Context, e *env) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := app.NewLogger(cfg.Log)

	ctx := cmd.Context()
	store, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(ctx, &env{cfg: cfg, log: log, store: store})
}
