package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/icapscan/internal/model"
)

// FileName is the name of the SQLite file created inside the data directory.
const FileName = "icapscan.db"

// timestampLayout is the layout used for the timestamp column. It is fixed
// width so that ORDER BY timestamp sorts chronologically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// ScanDB stores scan results keyed by sample digest and ICAP server.
//
// Design decision: The full report is kept as JSON next to a few indexed
// columns. Lookups (cache, history) only touch the columns, and the stored
// document can be re-rendered by any report writer.
type ScanDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures ScanDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a ScanDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*ScanDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer; batch workers share this connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	sdb := &ScanDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := sdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return sdb, nil
}

// Close closes the database connection.
func (sdb *ScanDB) Close() error {
	return sdb.db.Close()
}

// Path returns the path of the database file.
func (sdb *ScanDB) Path() string {
	return sdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (sdb *ScanDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scan_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sha256 TEXT NOT NULL,
		file_path TEXT NOT NULL,
		server TEXT NOT NULL,
		verdict TEXT NOT NULL,
		threats TEXT,
		report_json TEXT NOT NULL,
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scan_results_sha256 ON scan_results(sha256);
	CREATE INDEX IF NOT EXISTS idx_scan_results_lookup ON scan_results(sha256, server, timestamp);
	`

	_, err := sdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveScanReport stores a scan report. Reports without a SHA-256 digest
// cannot be looked up later and are rejected. It returns the row ID.
func (sdb *ScanDB) SaveScanReport(ctx context.Context, report *model.ScanReport) (int64, error) {
	if report == nil {
		return 0, errors.New("report is nil")
	}
	sha := report.SHA256()
	if sha == "" {
		return 0, errors.New("report has no sha256 digest")
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal report: %w", err)
	}

	query := `
	INSERT INTO scan_results (sha256, file_path, server, verdict, threats, report_json, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	scanned := report.DateScanned
	if scanned.IsZero() {
		scanned = time.Now()
	}

	res, err := sdb.db.ExecContext(ctx, query,
		sha,
		report.FilePath,
		report.Server,
		report.Verdict.String(),
		strings.Join(report.ThreatNames(), "\n"),
		string(reportJSON),
		scanned.UTC().Format(timestampLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save scan report: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted id: %w", err)
	}
	return id, nil
}

// GetLatestVerdict returns the most recent conclusive (clean or infected)
// report for a sample on a server. It returns nil, nil when there is none.
func (sdb *ScanDB) GetLatestVerdict(ctx context.Context, sha256, server string) (*model.ScanReport, error) {
	query := `
	SELECT report_json FROM scan_results
	WHERE sha256 = ? AND server = ? AND verdict IN (?, ?)
	ORDER BY timestamp DESC, id DESC
	LIMIT 1
	`

	var reportJSON string
	err := sdb.db.QueryRowContext(ctx, query, sha256, server,
		model.VerdictClean.String(), model.VerdictInfected.String()).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest verdict: %w", err)
	}

	return decodeReport(reportJSON)
}

// HasRecentScan reports whether a conclusive verdict for the sample on the
// server was stored less than maxAge ago.
func (sdb *ScanDB) HasRecentScan(ctx context.Context, sha256, server string, maxAge time.Duration) (bool, error) {
	if maxAge <= 0 {
		return false, nil
	}

	query := `
	SELECT timestamp FROM scan_results
	WHERE sha256 = ? AND server = ? AND verdict IN (?, ?)
	ORDER BY timestamp DESC
	LIMIT 1
	`

	var timestamp string
	err := sdb.db.QueryRowContext(ctx, query, sha256, server,
		model.VerdictClean.String(), model.VerdictInfected.String()).Scan(&timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check recent scan: %w", err)
	}

	scanned := parseTimestamp(timestamp)
	if scanned.IsZero() {
		return false, nil
	}
	return time.Since(scanned) < maxAge, nil
}

// ScanRecord is one row of scan history without the full report.
type ScanRecord struct {
	// ID is the unique identifier of the row.
	ID int64

	// SHA256 is the sample digest.
	SHA256 string

	// FilePath is where the sample was read from when it was scanned.
	FilePath string

	// Server identifies the ICAP service.
	Server string

	// Verdict is the stored verdict.
	Verdict model.Verdict

	// Threats lists the threat names, if any.
	Threats []string

	// Timestamp is when the scan was performed.
	Timestamp time.Time
}

// GetScanHistory returns every stored scan of a sample, newest first.
func (sdb *ScanDB) GetScanHistory(ctx context.Context, sha256 string) ([]ScanRecord, error) {
	query := `
	SELECT id, sha256, file_path, server, verdict, threats, timestamp
	FROM scan_results
	WHERE sha256 = ?
	ORDER BY timestamp DESC, id DESC
	`

	rows, err := sdb.db.QueryContext(ctx, query, sha256)
	if err != nil {
		return nil, fmt.Errorf("failed to get scan history: %w", err)
	}
	defer rows.Close()

	var records []ScanRecord
	for rows.Next() {
		var (
			rec       ScanRecord
			verdict   string
			threats   sql.NullString
			timestamp string
		)
		if err := rows.Scan(&rec.ID, &rec.SHA256, &rec.FilePath, &rec.Server, &verdict, &threats, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}

		rec.Verdict, err = model.ParseVerdict(verdict)
		if err != nil {
			rec.Verdict = model.VerdictUnknown
		}
		if threats.Valid && threats.String != "" {
			rec.Threats = strings.Split(threats.String, "\n")
		}
		rec.Timestamp = parseTimestamp(timestamp)

		records = append(records, rec)
	}

	return records, rows.Err()
}

// SampleSummary describes one distinct sample in the database.
type SampleSummary struct {
	// SHA256 is the sample digest.
	SHA256 string

	// FilePath is the most recently seen path of the sample.
	FilePath string

	// Scans is the number of stored scans.
	Scans int

	// LastScanned is the time of the newest scan.
	LastScanned time.Time
}

// ListScannedSamples returns every distinct sample, most recently scanned first.
func (sdb *ScanDB) ListScannedSamples(ctx context.Context) ([]SampleSummary, error) {
	query := `
	SELECT s.sha256,
		(SELECT file_path FROM scan_results r WHERE r.sha256 = s.sha256 ORDER BY r.timestamp DESC, r.id DESC LIMIT 1),
		COUNT(*),
		MAX(s.timestamp)
	FROM scan_results s
	GROUP BY s.sha256
	ORDER BY MAX(s.timestamp) DESC
	`

	rows, err := sdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}
	defer rows.Close()

	var samples []SampleSummary
	for rows.Next() {
		var (
			s         SampleSummary
			timestamp string
		)
		if err := rows.Scan(&s.SHA256, &s.FilePath, &s.Scans, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		s.LastScanned = parseTimestamp(timestamp)
		samples = append(samples, s)
	}

	return samples, rows.Err()
}

// GetScanReportByID retrieves a full scan report by its row ID.
// It returns nil, nil when no such row exists.
func (sdb *ScanDB) GetScanReportByID(ctx context.Context, id int64) (*model.ScanReport, error) {
	query := `
	SELECT report_json FROM scan_results
	WHERE id = ?
	`

	var reportJSON string
	err := sdb.db.QueryRowContext(ctx, query, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan report: %w", err)
	}

	return decodeReport(reportJSON)
}

func decodeReport(reportJSON string) (*model.ScanReport, error) {
	var report model.ScanReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// timestampFormats contains the timestamp formats accepted from the
// timestamp column. Rows written by older builds or by hand may use the
// SQLite default datetime format.
var timestampFormats = []string{
	timestampLayout,
	"2006-01-02 15:04:05", // SQLite default datetime format
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
