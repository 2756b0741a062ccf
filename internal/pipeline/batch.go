package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/icapscan/internal/config"
	"github.com/nao1215/icapscan/internal/model"
	"golang.org/x/sync/errgroup"
)

// BatchProcessor scans many samples concurrently.
// It uses errgroup to manage goroutines and respect concurrency limits.
//
// Design decision: We use a separate BatchProcessor rather than adding batch
// functionality to Pipeline so the Pipeline stays focused on one sample.
// Each sample gets its own pipeline from the factory, and through the
// ICAP scan step its own client, so no connection is ever shared.
type BatchProcessor struct {
	// server identifies the ICAP service in every report.
	server string

	// pipelineFactory creates a new pipeline for each sample.
	pipelineFactory func() *Pipeline

	// concurrency is the maximum number of concurrent scans.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent scans.
// Default is config.DefaultBatchSize if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor for server.
//
// The pipelineFactory function is called for each sample to create a fresh
// pipeline instance.
func NewBatchProcessor(server string, pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		server:          server,
		pipelineFactory: pipelineFactory,
		concurrency:     config.DefaultBatchSize,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch scans every path and returns one report per path, in input
// order. Failed scans still produce a report carrying the error.
//
// Design decision: We use errgroup.SetLimit rather than a worker pool
// because errgroup handles the concurrency correctly with less code.
//
// The error return is non-nil only when ctx was cancelled; samples that
// never started are reported as VerdictCancelled.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, paths []string) ([]*model.ScanReport, error) {
	results := make([]*model.ScanReport, len(paths))
	err := bp.ProcessBatchWithCallback(ctx, paths, func(report *model.ScanReport, index int) {
		// Each goroutine writes a distinct index.
		results[index] = report
	})
	return results, err
}

// ProcessBatchWithCallback scans every path and calls callback for each
// completed report. This is useful for streaming results.
//
// The callback receives the report and the index of the path in the
// original slice. It is called from the goroutine that completed the scan,
// so it should be thread-safe if it accesses shared state.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	paths []string,
	callback func(report *model.ScanReport, index int),
) error {
	bp.logger.Info("starting batch processing",
		"total_samples", len(paths),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()

	var g errgroup.Group
	g.SetLimit(bp.concurrency)

	for i, path := range paths {
		g.Go(func() error {
			report := model.NewScanReport(path, bp.server)

			if err := ctx.Err(); err != nil {
				report.Verdict = model.VerdictCancelled
				callback(report, i)
				return nil
			}

			bp.logger.Debug("scanning sample",
				"file", path,
				"index", i+1,
				"total", len(paths),
			)

			if err := bp.pipelineFactory().Execute(ctx, report); err != nil {
				// The error is recorded in the report; other scans continue.
				bp.logger.Warn("scan failed",
					"file", path,
					"error", err,
				)
			}

			callback(report, i)
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // goroutines never return errors

	bp.logger.Info("batch processing complete",
		"total_samples", len(paths),
		"elapsed", time.Since(startTime),
	)

	return ctx.Err()
}
