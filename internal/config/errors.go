package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoTarget is returned when no file or directory to scan is given.
	ErrNoTarget = errors.New("no target specified: provide at least one file or directory")

	// ErrNoHost is returned when neither --host nor a server profile names
	// the ICAP server.
	ErrNoHost = errors.New("no ICAP server specified: use --host or --server")

	// ErrInvalidPort is returned when the port is outside 1-65535.
	ErrInvalidPort = errors.New("invalid port: must be between 1 and 65535")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidRetries is returned when the retry count is not positive.
	// One means a single attempt without retrying.
	ErrInvalidRetries = errors.New("invalid retries: must be at least 1")

	// ErrInvalidChunkSize is returned when the chunk size is not positive.
	ErrInvalidChunkSize = errors.New("invalid chunk size: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidRescanAfter is returned when the rescan interval is negative.
	// Use 0 to always rescan.
	ErrInvalidRescanAfter = errors.New("invalid rescan interval: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrUnknownServer is returned when a server profile name is not defined
	// in the configuration file.
	ErrUnknownServer = errors.New("unknown server profile")
)
