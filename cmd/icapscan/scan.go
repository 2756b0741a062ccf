package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/icapscan/internal/config"
	"github.com/nao1215/icapscan/internal/database"
	"github.com/nao1215/icapscan/internal/model"
	"github.com/nao1215/icapscan/internal/pipeline"
	"github.com/nao1215/icapscan/internal/report"
)

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [paths...]",
		Short: "Scan files with an ICAP antivirus server",
		Long: `Scan submits every file to the ICAP server with RESPMOD and reports
whether it is clean or infected. Directories are walked recursively.

Verdicts are stored in the history database. A sample the same server
scanned within --rescan-after is answered from the database instead of
being sent again.

Exit status is 1 when any sample is infected and 2 when a sample could
not be scanned or the scan itself failed.

Examples:
  # Scan a single file
  icapscan scan --host 127.0.0.1 --service avscan ./download.zip

  # Scan a directory with 8 concurrent requests
  icapscan scan --host av.example -b 8 ./incoming

  # Use the "sophos" profile from .icapscan and write a Markdown report
  icapscan scan -S sophos -m -o report.md ./incoming

  # Always rescan, never touch the history database
  icapscan scan --host av.example --rescan-after 0 --no-db ./file.pdf`,
		Args: cobra.ArbitraryArgs,
		RunE: runScanCmd,
	}

	addServerFlags(cmd)

	// Batch and history flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of concurrent scans")
	cmd.Flags().Duration("rescan-after", config.DefaultRescanAfter,
		"Reuse stored verdicts younger than this (0 always rescans)")
	cmd.Flags().Bool("no-db", false,
		"Do not read or write the history database")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd, cfg.Verbose)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runScan(ctx, cmd, cfg, logger)
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := buildServerConfig(cmd)
	if err != nil {
		return nil, err
	}

	if cfg.BatchSize, err = cmd.Flags().GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.RescanAfter, err = cmd.Flags().GetDuration("rescan-after"); err != nil {
		return nil, err
	}
	noDB, err := cmd.Flags().GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB
	if cfg.DBDir, err = cmd.Flags().GetString("db-dir"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = cmd.Flags().GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = cmd.Flags().GetString("output"); err != nil {
		return nil, err
	}

	cfg.Targets = args
	return cfg, nil
}

// runScan scans every target and writes the report.
func runScan(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	paths, err := collectFiles(cfg.Targets)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no regular files found in the given paths")
	}

	server := serverLabel(cfg)
	logger.Info("starting scan",
		"server", server,
		"files", len(paths),
		"batchSize", cfg.BatchSize,
		"saveToDB", cfg.SaveToDB,
	)

	configOpts := []pipeline.DefaultPipelineOption{
		pipeline.WithPipelineLogger(logger),
		pipeline.WithPipelineRescanAfter(cfg.RescanAfter),
	}
	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())
		configOpts = append(configOpts, pipeline.WithPipelineStore(db))
	}

	factory := newClientFactory(cfg, logger)
	bp := pipeline.NewBatchProcessor(server,
		func() *pipeline.Pipeline {
			return pipeline.DefaultPipeline(factory, []pipeline.Option{pipeline.WithLogger(logger)}, configOpts...)
		},
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	// Per-file lines go to stdout only when the final report does too and
	// is plain text; otherwise they would corrupt the report.
	progress := cmd.ErrOrStderr()
	if !cfg.JSONReport && !cfg.MarkdownReport && cfg.ReportFile == "" {
		progress = cmd.OutOrStdout()
	}
	lineWriter := report.NewSimpleWriter(progress, report.WithVerbose(cfg.Verbose))

	started := time.Now()
	results := make([]*model.ScanReport, len(paths))
	var mu sync.Mutex
	batchErr := bp.ProcessBatchWithCallback(ctx, paths, func(r *model.ScanReport, index int) {
		mu.Lock()
		defer mu.Unlock()

		results[index] = r
		if _, err := lineWriter.Write(r); err != nil {
			logger.Error("failed to write result", "file", r.FilePath, "error", err)
		}
	})

	summary := model.NewBatchSummary(server, started, results)
	if err := outputSummary(cmd.OutOrStdout(), progress, cfg, summary); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if batchErr != nil {
		return fmt.Errorf("scan interrupted: %w", batchErr)
	}
	if summary.Infected > 0 {
		return fmt.Errorf("%w: %d of %d", errInfected, summary.Infected, summary.Total)
	}
	if summary.Errors > 0 {
		return fmt.Errorf("%d of %d samples could not be scanned", summary.Errors, summary.Total)
	}
	return nil
}

// collectFiles expands targets into regular files. Directories are walked
// recursively; symlinks and other special files inside them are skipped.
// A target that does not exist is an error.
func collectFiles(targets []string) ([]string, error) {
	var files []string
	for _, target := range targets {
		info, err := os.Stat(target)
		if err != nil {
			return nil, fmt.Errorf("cannot scan %s: %w", target, err)
		}

		if !info.IsDir() {
			if !info.Mode().IsRegular() {
				return nil, fmt.Errorf("cannot scan %s: not a regular file", target)
			}
			files = append(files, target)
			continue
		}

		err = filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", target, err)
		}
	}
	return files, nil
}

// outputSummary writes the batch summary in the requested format, either to
// stdout or to cfg.ReportFile. When the report goes to a file the plain text
// summary is also written to progress.
func outputSummary(stdout, progress io.Writer, cfg *config.Config, summary *model.BatchSummary) error {
	output := stdout
	if cfg.ReportFile != "" {
		if dir := filepath.Dir(cfg.ReportFile); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports name local files and threats, keep them private
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	var w report.Writer
	switch {
	case cfg.JSONReport:
		w = report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		w = report.NewMarkdownWriter(output)
	default:
		w = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}

	if cfg.ReportFile != "" {
		w = report.NewMultiWriter(w, report.NewSimpleWriter(progress))
	}

	_, err := w.WriteSummary(summary)
	return err
}
