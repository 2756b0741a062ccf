package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultPort is the IANA-registered ICAP port.
	DefaultPort = 1344

	// DefaultService is the RESPMOD service path most antivirus ICAP servers
	// expose. c-icap with squidclamav uses "srv_clamav"; change it per server.
	DefaultService = "av/respmod"

	// DefaultTimeout applies to each dial, write and read, not to a whole
	// scan. Large samples on a busy scanner can take a while to be answered.
	DefaultTimeout = 30 * time.Second

	// DefaultRetries is the number of attempts per ICAP call.
	DefaultRetries = 3

	// DefaultChunkSize is the payload size of each chunk sent to the server.
	DefaultChunkSize = 8160

	// DefaultBatchSize of 4 concurrent scans keeps a single ICAP server busy
	// without exhausting its connection limit.
	DefaultBatchSize = 4

	// DefaultRescanAfter is how long a stored verdict is reused before the
	// same sample is sent to the same server again.
	DefaultRescanAfter = 24 * time.Hour

	// AppName is the application name used for XDG directory paths.
	AppName = "icapscan"
)

// Config holds all configuration options for icapscan.
// This struct is populated from CLI flags and the optional configuration
// file, then passed down explicitly rather than kept in global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., ServerConfig, OutputConfig). The number of options is manageable,
// and server profiles from the configuration file are merged into it by
// ApplyServerConfig before flags are applied.
type Config struct {
	// Host is the ICAP server host name or IP address.
	Host string

	// Port is the ICAP server TCP port.
	Port int

	// Service is the ICAP service path, e.g. "av/respmod" or "avscan".
	Service string

	// Action is appended to the service path on RESPMOD requests.
	Action string

	// Server is the name of a server profile from the configuration file.
	Server string

	// SocksProxy is an optional "host:port" SOCKS5 proxy used to reach the
	// ICAP server.
	SocksProxy string

	// Timeout is the per-operation network timeout.
	Timeout time.Duration

	// Retries is the number of attempts made for each ICAP call.
	Retries int

	// ChunkSize is the payload size of each chunk sent to the server.
	ChunkSize int

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// BatchSize is the number of samples scanned concurrently.
	// Each concurrent scan holds its own connection to the server.
	BatchSize int

	// RescanAfter is how long a stored verdict stays valid. Zero disables
	// the cache lookup and every sample is scanned again.
	RescanAfter time.Duration

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches for .icapscan in the current directory
	// and then in the user's home directory.
	ConfigFilePath string

	// Servers holds the server profiles loaded from the configuration file.
	Servers *File

	// JSONReport enables JSON report output.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables GitHub Flavored Markdown report output.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	ReportFile string

	// Targets are the files and directories to scan.
	Targets []string

	// DBDir is the directory holding the SQLite history database.
	// Defaults to the XDG data directory (~/.local/share/icapscan on Linux).
	DBDir string

	// SaveToDB indicates whether results are stored and cached verdicts used.
	SaveToDB bool
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (port, timeout, retries).
// This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		Port:        DefaultPort,
		Service:     DefaultService,
		Timeout:     DefaultTimeout,
		Retries:     DefaultRetries,
		ChunkSize:   DefaultChunkSize,
		BatchSize:   DefaultBatchSize,
		RescanAfter: DefaultRescanAfter,
		DBDir:       XDGDataDir(),
		SaveToDB:    true,
	}
}

// ApplyServerConfig copies every field set in sc over c.
// Zero values in sc leave c unchanged.
func (c *Config) ApplyServerConfig(sc ServerConfig) {
	if sc.Host != "" {
		c.Host = sc.Host
	}
	if sc.Port != 0 {
		c.Port = sc.Port
	}
	if sc.Service != "" {
		c.Service = sc.Service
	}
	if sc.Action != "" {
		c.Action = sc.Action
	}
	if sc.SocksProxy != "" {
		c.SocksProxy = sc.SocksProxy
	}
	if sc.Timeout != 0 {
		c.Timeout = sc.Timeout
	}
	if sc.Retries != 0 {
		c.Retries = sc.Retries
	}
	if sc.ChunkSize != 0 {
		c.ChunkSize = sc.ChunkSize
	}
}

// XDGDataDir returns the XDG data directory for icapscan.
// On Linux: ~/.local/share/icapscan
// On macOS: ~/Library/Application Support/icapscan
// On Windows: %LOCALAPPDATA%\icapscan
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for icapscan.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found as one of the package's sentinel errors.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after flags and profiles are merged.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	return c.ValidateServer()
}

// ValidateServer checks only the settings needed to talk to a server.
// Commands that scan nothing, such as options, use it instead of Validate.
func (c *Config) ValidateServer() error {
	if c.Host == "" {
		return ErrNoHost
	}

	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}

	// Timeout must be positive; zero would fail every read immediately
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.Retries <= 0 {
		return ErrInvalidRetries
	}

	if c.ChunkSize <= 0 {
		return ErrInvalidChunkSize
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.RescanAfter < 0 {
		return ErrInvalidRescanAfter
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	return nil
}
