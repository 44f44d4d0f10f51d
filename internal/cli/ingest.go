package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/corali-systems/docsearchai/internal/domain"
	"github.com/corali-systems/docsearchai/internal/jobs"
	"github.com/corali-systems/docsearchai/internal/state"
	"github.com/corali-systems/docsearchai/internal/storage"
)

// IngestCmd returns the ingest command
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [file.pdf]",
		Short: "Ingest a PDF into the search index",
		Long:  "Ingest a local PDF, or sweep the configured source bucket once with --sweep",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runIngest,
	}

	cmd.Flags().String("file-id", "", "Stable identifier for the document (defaults to the file name)")
	cmd.Flags().String("drive-path", "", "Logical drive path stored with the document")
	cmd.Flags().String("web-url", "", "Source URL stored with the document")
	cmd.Flags().Bool("dry-run", false, "Run the full pipeline but write nothing")
	cmd.Flags().Bool("sweep", false, "Process every pending PDF in the source bucket once")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	app, cleanup, err := buildApp()
	if err != nil {
		return err
	}
	defer cleanup()
	ctx := cmd.Context()

	if err := app.store.EnsureCollections(ctx); err != nil {
		return fmt.Errorf("failed to ensure qdrant collections: %w", err)
	}

	sweep, _ := cmd.Flags().GetBool("sweep")
	if sweep {
		return runSweep(cmd, app)
	}

	if len(args) != 1 {
		return fmt.Errorf("expected a PDF path (or --sweep)")
	}
	path := args[0]

	pdfBytes, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	fileID, _ := cmd.Flags().GetString("file-id")
	if fileID == "" {
		fileID = filepath.Base(path)
	}
	drivePath, _ := cmd.Flags().GetString("drive-path")
	webURL, _ := cmd.Flags().GetString("web-url")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	meta := domain.FileMeta{
		ID:        fileID,
		Name:      filepath.Base(path),
		DrivePath: drivePath,
		WebURL:    webURL,
		Size:      int64(len(pdfBytes)),
	}

	result := app.ingest.ProcessDocument(ctx, meta, pdfBytes, dryRun)

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("ingestion failed: %s", result.Error)
	}
	return nil
}

func runSweep(cmd *cobra.Command, a *app) error {
	ctx := cmd.Context()
	cfg := a.cfg

	if !cfg.HasS3() {
		return fmt.Errorf("source bucket not configured: S3_ENDPOINT, S3_ACCESS_KEY_ID, and S3_SECRET_ACCESS_KEY required")
	}

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

	tracker, err := state.NewTracker(cfg.StatePath, a.log.Named("state"))
	if err != nil {
		return fmt.Errorf("failed to open state tracker: %w", err)
	}
	defer tracker.Close()

	worker := jobs.NewIngestWorker(s3Client, tracker, a.ingest, a.log.Named("worker"))
	return worker.ProcessJobs(ctx)
}
