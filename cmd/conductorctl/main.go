package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/Harshitk-cp/conductor/internal/buildconfig"
	"github.com/Harshitk-cp/conductor/internal/config"
	"github.com/Harshitk-cp/conductor/internal/embedding"
	"github.com/Harshitk-cp/conductor/internal/logger"
	"github.com/Harshitk-cp/conductor/internal/service"
	"github.com/Harshitk-cp/conductor/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:           "conductorctl",
	Short:         "conductorctl - operate a conductor deployment",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.Load()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

var importCmd = &cobra.Command{
	Use:   "import <guidelines.yaml>",
	Short: "Upsert guidelines from a YAML file and embed new or changed ones",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Embed enabled guidelines that have no embedding",
	Args:  cobra.NoArgs,
	RunE:  runBackfill,
}

var listCmd = &cobra.Command{
	Use:   "guidelines",
	Short: "List stored guidelines",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the conductor version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), buildconfig.Current().String())
		return err
	},
}

var (
	dryRunFlag bool
	jsonFlag   bool
)

func init() {
	importCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "validate the file without writing")
	listCmd.Flags().BoolVar(&jsonFlag, "json", false, "print as JSON")

	rootCmd.AddCommand(migrateCmd, importCmd, backfillCmd, listCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func connect(ctx context.Context) (*pgxpool.Pool, error) {
	dbURL := config.DatabaseURL()
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func newLogger() (*zap.Logger, error) {
	return logger.New(config.LogLevel(), config.LogFile())
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := store.Migrate(ctx, pool, config.MigrationsPath())
	for _, name := range applied {
		fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
	}
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	guidelines, err := service.LoadGuidelineFile(args[0])
	if err != nil {
		return err
	}
	if dryRunFlag {
		fmt.Fprintf(cmd.OutOrStdout(), "%d guidelines OK\n", len(guidelines))
		return nil
	}

	ctx := cmd.Context()
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	embedder, err := embedding.NewClient(ctx, config.EmbeddingProvider(), config.EmbeddingAPIKey(), config.EmbeddingModel())
	if err != nil {
		return err
	}

	svc := service.NewGuidelineService(store.NewGuidelineStore(pool), embedder, log)
	res, err := svc.Import(ctx, guidelines)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "upserted %d, embedded %d, pending %d\n", res.Upserted, res.Embedded, len(res.Pending))
	return nil
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	embedder, err := embedding.NewClient(ctx, config.EmbeddingProvider(), config.EmbeddingAPIKey(), config.EmbeddingModel())
	if err != nil {
		return err
	}

	svc := service.NewBackfillService(store.NewGuidelineStore(pool), embedder, log)
	res, err := svc.RunOnce(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "pending %d, embedded %d, skipped %d, failed %d\n", res.Pending, res.Embedded, res.Skipped, res.Failed)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	guidelines, err := store.NewGuidelineStore(pool).List(ctx)
	if err != nil {
		return err
	}

	if jsonFlag {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(guidelines)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPRIORITY\tENABLED\tCATEGORY\tTITLE")
	for _, g := range guidelines {
		fmt.Fprintf(tw, "%s\t%d\t%t\t%s\t%s\n", g.ID, g.Priority, g.Enabled, g.Category, g.Title)
	}
	return tw.Flush()
}
