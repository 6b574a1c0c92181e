package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"avm/config"
	"avm/internal/database"
	"avm/internal/ingest"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logger    = logrus.New()
	dbPath    string
	batchSize int
	pruneDays int
)

func main() {
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		logger.WithError(err).Error("Importer failed")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	root := &cobra.Command{
		Use:           "importer",
		Short:         "Load crawler exports into the listings dataset",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", cfg.Database.Path, "SQLite database path")
	root.PersistentFlags().IntVar(&batchSize, "batch-size", 500, "Rows per insert transaction")

	root.AddCommand(
		importCommand("listings", "Import active listings from NDJSON exports", false),
		importCommand("removed", "Import removed listings from NDJSON exports", true),
		pruneCommand(cfg.Valuation.ArchiveWindowDays),
	)
	return root
}

func openDatabase() (*database.Database, error) {
	db, err := database.NewDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func importCommand(use, short string, removed bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " FILE...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			importer := ingest.NewImporter(db, batchSize, logger)
			var total ingest.Stats
			for _, path := range args {
				stats, err := importer.ImportFile(cmd.Context(), path, removed)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				total.Lines += stats.Lines
				total.Imported += stats.Imported
				total.Skipped += stats.Skipped
			}

			logger.WithFields(logrus.Fields{
				"files":    len(args),
				"lines":    total.Lines,
				"imported": total.Imported,
				"skipped":  total.Skipped,
				"removed":  removed,
			}).Info("Import finished")
			return nil
		},
	}
}

func pruneCommand(defaultDays int) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete removed listings older than the archive window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pruneDays <= 0 {
				return fmt.Errorf("--days must be positive, got %d", pruneDays)
			}

			db, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			cutoff := time.Now().AddDate(0, 0, -pruneDays)
			deleted, err := db.PruneRemovedListings(cmd.Context(), cutoff)
			if err != nil {
				return err
			}

			logger.WithFields(logrus.Fields{
				"cutoff":  cutoff.Format(time.RFC3339),
				"deleted": deleted,
			}).Info("Prune finished")
			return nil
		},
	}
	cmd.Flags().IntVar(&pruneDays, "days", defaultDays, "Archive window in days")
	return cmd
}
