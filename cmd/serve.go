package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegroup/internal/clustering"
	"github.com/kozaktomas/facegroup/internal/config"
	"github.com/kozaktomas/facegroup/internal/database"
	"github.com/kozaktomas/facegroup/internal/database/postgres"
	"github.com/kozaktomas/facegroup/internal/detector"
	"github.com/kozaktomas/facegroup/internal/ingest"
	"github.com/kozaktomas/facegroup/internal/notify"
	"github.com/kozaktomas/facegroup/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the facegroup API server.
The server accepts face detections, groups them into identity clusters,
and exposes labeling, membership and listing endpoints.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Bool("no-index", false, "Disable the in-memory similarity index")
}

// buildIndex loads all stored detections into the in-memory HNSW index that
// backs the similar-detections endpoint.
func buildIndex(ctx context.Context, store database.Store) *database.HNSWIndex {
	fmt.Println("Building in-memory similarity index...")
	detections, err := store.AllDetections(ctx)
	if err != nil {
		fmt.Printf("Warning: failed to load detections for index: %v\n", err)
		fmt.Println("Similarity search endpoint will be unavailable")
		return nil
	}
	index := database.NewHNSWIndex()
	if err := index.BuildFromDetections(detections); err != nil {
		fmt.Printf("Warning: failed to build similarity index: %v\n", err)
		fmt.Println("Similarity search endpoint will be unavailable")
		return nil
	}
	fmt.Printf("Similarity index ready with %d detections\n", index.Count())
	return index
}

// buildNotifier wires the notification sender from configured URLs, falling
// back to log-only notifications.
func buildNotifier(cfg *config.Config) clustering.Notifier {
	if len(cfg.Notify.URLs) == 0 {
		fmt.Println("No notification services configured, logging notifications only")
		return notify.LogNotifier{}
	}
	sender, err := notify.NewSender(cfg.Notify.URLs)
	if err != nil {
		fmt.Printf("Warning: failed to configure notifications: %v\n", err)
		return notify.LogNotifier{}
	}
	fmt.Printf("Notifications enabled (%d services)\n", len(cfg.Notify.URLs))
	return sender
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	store := postgres.NewRepository(pool)
	ctx := context.Background()

	var index *database.HNSWIndex
	if !mustGetBool(cmd, "no-index") {
		index = buildIndex(ctx, store)
	}

	notifier := buildNotifier(cfg)
	clusters := clustering.NewService(store, notifier, cfg.Embedding.Dim, cfg.Thresholds)

	var processor *ingest.Processor
	if cfg.Detector.URL != "" {
		processor = ingest.NewProcessor(store, detector.NewClient(cfg.Detector.URL), clusters)
		fmt.Printf("Detector service: %s\n", cfg.Detector.URL)
	} else {
		fmt.Println("DETECTOR_URL not set, media processing endpoints disabled")
	}

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, port, host, clusters, store, processor, index)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting facegroup API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
