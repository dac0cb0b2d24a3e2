package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegroup/internal/clustering"
	"github.com/kozaktomas/facegroup/internal/config"
	"github.com/kozaktomas/facegroup/internal/database/postgres"
	"github.com/kozaktomas/facegroup/internal/detector"
	"github.com/kozaktomas/facegroup/internal/ingest"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process the unprocessed media backlog",
	Long: `Download every unprocessed media item, run face detection on it and
assign the detected faces to identity clusters. Videos are skipped and
marked as processed.`,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if cfg.Detector.URL == "" {
		return errors.New("DETECTOR_URL environment variable is required")
	}

	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	store := postgres.NewRepository(pool)
	notifier := buildNotifier(cfg)
	clusters := clustering.NewService(store, notifier, cfg.Embedding.Dim, cfg.Thresholds)
	processor := ingest.NewProcessor(store, detector.NewClient(cfg.Detector.URL), clusters)

	ctx := context.Background()

	var bar *progressbar.ProgressBar
	progress := func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Processing media"),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("media"),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetPredictTime(true),
				progressbar.OptionFullWidth(),
			)
		}
		_ = bar.Set(done)
	}

	assigned, err := processor.ProcessBacklog(ctx, progress)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("processing backlog: %w", err)
	}

	fmt.Printf("Done. Assigned %d detections to clusters.\n", assigned)
	return nil
}
