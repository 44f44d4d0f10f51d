package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/corali-systems/docsearchai/internal/api/handlers"
	"github.com/corali-systems/docsearchai/internal/jobs"
	"github.com/corali-systems/docsearchai/internal/server"
	"github.com/corali-systems/docsearchai/internal/state"
	"github.com/corali-systems/docsearchai/internal/storage"
	"github.com/corali-systems/docsearchai/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the docsearch API server and, when a source bucket is configured, the background ingestion worker",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-worker", false, "Disable the background ingestion worker")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	app, cleanup, err := buildApp()
	if err != nil {
		return err
	}
	defer cleanup()
	cfg, log := app.cfg, app.log

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if cfg.SentryDSN != "" {
		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if cfg.Environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Warn("telemetry init failed, continuing without tracing", zap.Error(err))
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	if err := app.store.EnsureCollections(ctx); err != nil {
		return fmt.Errorf("failed to ensure qdrant collections: %w", err)
	}
	log.Info("qdrant collections ready")

	var ingestWorker *jobs.Worker
	noWorker, _ := cmd.Flags().GetBool("no-worker")
	if cfg.HasS3() && !noWorker {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}

		tracker, err := state.NewTracker(cfg.StatePath, log.Named("state"))
		if err != nil {
			return fmt.Errorf("failed to open state tracker: %w", err)
		}
		defer tracker.Close()

		processor := jobs.NewIngestWorker(s3Client, tracker, app.ingest, log.Named("worker"))
		ingestWorker = jobs.NewWorker(processor, cfg.WorkerPollInterval, log.Named("worker"))
		go ingestWorker.Start(ctx)
		log.Info("ingestion worker started",
			zap.String("bucket", cfg.S3Bucket),
			zap.Duration("poll_interval", cfg.WorkerPollInterval))
	}

	router := server.NewRouter(server.RouterConfig{
		SearchHandler: handlers.NewSearchHandler(app.search),
		IngestHandler: handlers.NewIngestHandler(app.ingest),
		Logger:        log.Named("http"),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down...")

	if ingestWorker != nil {
		ingestWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}
