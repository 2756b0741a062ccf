package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/icapscan/internal/config"
	"github.com/nao1215/icapscan/internal/model"
	"github.com/nao1215/icapscan/internal/sample"
	"github.com/nao1215/icapscan/internal/verdict"
)

// Scanner submits a local file to an ICAP server. *icap.Client satisfies it.
type Scanner interface {
	// ScanLocalFile returns the raw ICAP response. A nil response with a nil
	// error means the call was cancelled by Close.
	ScanLocalFile(ctx context.Context, path string) ([]byte, error)

	// Close cancels an in-flight call and releases the connection.
	Close() error
}

// ClientFactory creates a fresh Scanner. It is called once per sample so
// that concurrent scans never share a connection.
type ClientFactory func() (Scanner, error)

// Store is the subset of the history database used by the pipeline.
// *database.ScanDB satisfies it.
type Store interface {
	HasRecentScan(ctx context.Context, sha256, server string, maxAge time.Duration) (bool, error)
	GetLatestVerdict(ctx context.Context, sha256, server string) (*model.ScanReport, error)
	SaveScanReport(ctx context.Context, report *model.ScanReport) (int64, error)
}

// ErrNoSample is returned by steps that need the sample digest when the
// inspect step has not run.
var ErrNoSample = errors.New("sample has not been inspected")

// InspectStep reads the sample and records its size, digests and type.
type InspectStep struct{}

// NewInspectStep creates a new inspect step.
func NewInspectStep() *InspectStep {
	return &InspectStep{}
}

// Name returns the step name.
func (s *InspectStep) Name() string {
	return "inspect"
}

// Do executes the inspect step.
func (s *InspectStep) Do(_ context.Context, report *model.ScanReport) error {
	info, err := sample.Inspect(report.FilePath)
	if err != nil {
		return fmt.Errorf("inspecting sample: %w", err)
	}
	report.Sample = info
	return nil
}

// CacheLookupStep reuses a stored verdict when the same sample was scanned
// by the same server less than rescanAfter ago. A cache hit sets
// report.Cached, which makes the later steps skip.
//
// Design decision: Only clean and infected verdicts are reused. Errors and
// cancellations say nothing about the sample, so they are always retried.
type CacheLookupStep struct {
	store       Store
	rescanAfter time.Duration
	logger      *slog.Logger
}

// CacheLookupStepOption configures a CacheLookupStep.
type CacheLookupStepOption func(*CacheLookupStep)

// WithCacheLogger sets a custom logger for the cache lookup step.
func WithCacheLogger(logger *slog.Logger) CacheLookupStepOption {
	return func(s *CacheLookupStep) {
		s.logger = logger
	}
}

// NewCacheLookupStep creates a cache lookup step. A nil store or a
// non-positive rescanAfter disables the cache.
func NewCacheLookupStep(store Store, rescanAfter time.Duration, opts ...CacheLookupStepOption) *CacheLookupStep {
	s := &CacheLookupStep{
		store:       store,
		rescanAfter: rescanAfter,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *CacheLookupStep) Name() string {
	return "cache_lookup"
}

// Do executes the cache lookup step. Database failures are logged and
// treated as a miss.
func (s *CacheLookupStep) Do(ctx context.Context, report *model.ScanReport) error {
	if s.store == nil || s.rescanAfter <= 0 {
		return nil
	}
	sha := report.SHA256()
	if sha == "" {
		return ErrNoSample
	}

	recent, err := s.store.HasRecentScan(ctx, sha, report.Server, s.rescanAfter)
	if err != nil {
		s.logger.Warn("verdict cache lookup failed", "sha256", sha, "error", err)
		return nil
	}
	if !recent {
		return nil
	}

	cached, err := s.store.GetLatestVerdict(ctx, sha, report.Server)
	if err != nil {
		s.logger.Warn("verdict cache lookup failed", "sha256", sha, "error", err)
		return nil
	}
	if cached == nil {
		return nil
	}

	report.Cached = true
	report.Verdict = cached.Verdict
	report.Vendor = cached.Vendor
	report.ISTag = cached.ISTag
	report.ICAPStatus = cached.ICAPStatus
	report.HTTPStatus = cached.HTTPStatus
	for _, t := range cached.Threats {
		report.AddThreat(t)
	}

	s.logger.Debug("using cached verdict",
		"sha256", sha,
		"verdict", cached.Verdict,
		"scanned", cached.DateScanned,
	)
	return nil
}

// ICAPScanStep submits the sample to the ICAP server and stores the raw
// response in the report.
type ICAPScanStep struct {
	newClient ClientFactory
	logger    *slog.Logger
}

// ICAPScanStepOption configures an ICAPScanStep.
type ICAPScanStepOption func(*ICAPScanStep)

// WithICAPLogger sets a custom logger for the ICAP scan step.
func WithICAPLogger(logger *slog.Logger) ICAPScanStepOption {
	return func(s *ICAPScanStep) {
		s.logger = logger
	}
}

// NewICAPScanStep creates an ICAP scan step that obtains a client from
// newClient for every sample.
func NewICAPScanStep(newClient ClientFactory, opts ...ICAPScanStepOption) *ICAPScanStep {
	s := &ICAPScanStep{
		newClient: newClient,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *ICAPScanStep) Name() string {
	return "icap_scan"
}

// Do executes the ICAP scan step.
//
// The client is closed when ctx is cancelled, which abandons an in-flight
// exchange. The report is then marked VerdictCancelled.
func (s *ICAPScanStep) Do(ctx context.Context, report *model.ScanReport) error {
	if report.Cached {
		return nil
	}

	client, err := s.newClient()
	if err != nil {
		return fmt.Errorf("creating ICAP client: %w", err)
	}
	defer client.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = client.Close() //nolint:errcheck // cancellation only
	})
	defer stop()

	raw, err := client.ScanLocalFile(ctx, report.FilePath)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", report.FileName, err)
	}
	if raw == nil {
		s.logger.Warn("scan cancelled", "file", report.FilePath)
		report.Verdict = model.VerdictCancelled
		return nil
	}

	report.RawResponse = raw
	return nil
}

// VerdictStep interprets the raw ICAP response.
type VerdictStep struct{}

// NewVerdictStep creates a new verdict step.
func NewVerdictStep() *VerdictStep {
	return &VerdictStep{}
}

// Name returns the step name.
func (s *VerdictStep) Name() string {
	return "verdict"
}

// Do executes the verdict step. An unexpected ICAP status still copies the
// status and ISTag into the report before failing.
func (s *VerdictStep) Do(_ context.Context, report *model.ScanReport) error {
	if report.Cached || report.RawResponse == nil {
		return nil
	}

	res, err := verdict.Analyze(report.RawResponse)
	if res != nil {
		res.ApplyTo(report)
	}
	return err
}

// PersistStep stores conclusive results in the history database.
type PersistStep struct {
	store  Store
	logger *slog.Logger
}

// PersistStepOption configures a PersistStep.
type PersistStepOption func(*PersistStep)

// WithPersistLogger sets a custom logger for the persist step.
func WithPersistLogger(logger *slog.Logger) PersistStepOption {
	return func(s *PersistStep) {
		s.logger = logger
	}
}

// NewPersistStep creates a persist step. A nil store disables it.
func NewPersistStep(store Store, opts ...PersistStepOption) *PersistStep {
	s := &PersistStep{
		store:  store,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return "persist"
}

// Do executes the persist step. A failed write is logged and does not
// change the verdict.
func (s *PersistStep) Do(ctx context.Context, report *model.ScanReport) error {
	if s.store == nil || report.Cached || report.SHA256() == "" {
		return nil
	}
	if report.Verdict != model.VerdictClean && report.Verdict != model.VerdictInfected {
		return nil
	}

	id, err := s.store.SaveScanReport(ctx, report)
	if err != nil {
		s.logger.Warn("failed to save scan result", "file", report.FilePath, "error", err)
		return nil
	}

	s.logger.Debug("saved scan result", "file", report.FilePath, "id", id)
	return nil
}

// DefaultPipelineConfig holds settings for DefaultPipeline.
type DefaultPipelineConfig struct {
	// Store is the history database. Nil disables caching and persistence.
	Store Store

	// RescanAfter is how long a stored verdict may be reused.
	RescanAfter time.Duration

	// Logger is passed to every step.
	Logger *slog.Logger
}

// DefaultPipelineOption configures a DefaultPipelineConfig.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithPipelineStore sets the history database.
func WithPipelineStore(store Store) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Store = store
	}
}

// WithPipelineRescanAfter sets the verdict cache window.
func WithPipelineRescanAfter(d time.Duration) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.RescanAfter = d
	}
}

// WithPipelineLogger sets the logger passed to each step.
func WithPipelineLogger(logger *slog.Logger) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Logger = logger
	}
}

// DefaultPipeline creates the standard per-sample pipeline:
// inspect, cache_lookup, icap_scan, verdict, persist.
//
// The first variadic parameter accepts pipeline options (WithLogger, etc).
// The second accepts pipeline config options (WithPipelineStore, etc).
func DefaultPipeline(newClient ClientFactory, pipelineOpts []Option, configOpts ...DefaultPipelineOption) *Pipeline {
	p := New(pipelineOpts...)

	cfg := &DefaultPipelineConfig{
		RescanAfter: config.DefaultRescanAfter,
		Logger:      slog.Default(),
	}
	for _, opt := range configOpts {
		opt(cfg)
	}

	p.AddSteps(
		NewInspectStep(),
		NewCacheLookupStep(cfg.Store, cfg.RescanAfter, WithCacheLogger(cfg.Logger)),
		NewICAPScanStep(newClient, WithICAPLogger(cfg.Logger)),
		NewVerdictStep(),
		NewPersistStep(cfg.Store, WithPersistLogger(cfg.Logger)),
	)

	return p
}
