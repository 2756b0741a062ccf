package model

import (
	"path/filepath"
	"slices"
	"time"
)

// UnidentifiedThreat is the threat name used when a scanner blocks a sample
// without saying what it found.
const UnidentifiedThreat = "Unidentified threat"

// ScanReport is the result of submitting one sample to an ICAP server.
//
// Design decision: Like the rest of this package the report is a flat,
// JSON-serializable struct. The same document is written to the history
// database and to report writers, so a stored report can be re-rendered
// without scanning again.
type ScanReport struct {
	// === Sample ===

	// FilePath is the path the sample was read from.
	FilePath string `json:"file_path"`

	// FileName is the base name sent in the synthetic HTTP request.
	FileName string `json:"file_name"`

	// Sample holds size, digests and type information.
	Sample *SampleInfo `json:"sample,omitempty"`

	// === Scan ===

	// Server identifies the ICAP service as host:port/service.
	Server string `json:"server"`

	// DateScanned is when the scan started.
	DateScanned time.Time `json:"date_scanned"`

	// Duration is the wall-clock time spent on the scan.
	Duration time.Duration `json:"duration"`

	// Cached is true when the verdict was taken from the history database
	// instead of contacting the server.
	Cached bool `json:"cached"`

	// === Verdict ===

	// Verdict is the final outcome.
	Verdict Verdict `json:"verdict"`

	// Threats lists what the scanner reported. Empty unless infected.
	Threats []Threat `json:"threats,omitempty"`

	// Vendor names the response shape the verdict was read from,
	// e.g. "x-infection-found".
	Vendor string `json:"vendor,omitempty"`

	// ISTag is the service tag returned by the server; it changes whenever
	// the scanner's signatures change.
	ISTag string `json:"istag,omitempty"`

	// ICAPStatus is the ICAP status code of the response.
	ICAPStatus int `json:"icap_status,omitempty"`

	// HTTPStatus is the status of the encapsulated HTTP response, if any.
	HTTPStatus int `json:"http_status,omitempty"`

	// RawResponse is the response as received. Not serialized.
	RawResponse []byte `json:"-"`

	// === State ===

	// PerformedSteps lists the pipeline steps that ran.
	PerformedSteps []string `json:"performed_steps,omitempty"`

	// Error contains the error that stopped the scan, if any.
	Error error `json:"-"`

	// ErrorMessage is the string form of Error for serialization.
	ErrorMessage string `json:"error,omitempty"` //nolint:tagliatelle // error is conventional
}

// Threat is one finding reported by the scanner.
type Threat struct {
	// Name is the signature or threat name.
	Name string `json:"name"`

	// Type is the vendor's classification, when given.
	Type string `json:"type,omitempty"`

	// Resolution is the action the scanner took, when given.
	Resolution string `json:"resolution,omitempty"`

	// FileName is the member of an archive the threat was found in.
	FileName string `json:"file_name,omitempty"`

	// ID is the vendor's numeric threat identifier.
	ID string `json:"id,omitempty"`

	// Disposition is the vendor's disposition code.
	Disposition string `json:"disposition,omitempty"`
}

// SampleInfo describes the scanned bytes.
type SampleInfo struct {
	// Size is the sample length in bytes.
	Size int64 `json:"size"`

	// SHA256 is the hex SHA-256 digest. It keys the history database.
	SHA256 string `json:"sha256"`

	// SHA3256 is the hex SHA3-256 digest.
	SHA3256 string `json:"sha3_256"` //nolint:tagliatelle // digest name

	// MIMEType is the sniffed content type.
	MIMEType string `json:"mime_type"`

	// EXIF summarizes image metadata for JPEG and TIFF samples.
	EXIF *ExifSummary `json:"exif,omitempty"`
}

// ExifSummary keeps the few EXIF fields worth reporting next to a verdict.
type ExifSummary struct {
	Make     string `json:"make,omitempty"`
	Model    string `json:"model,omitempty"`
	Software string `json:"software,omitempty"`
	DateTime string `json:"date_time,omitempty"`
	HasGPS   bool   `json:"has_gps"`
	TagCount int    `json:"tag_count"`
}

// NewScanReport creates a report for the sample at path scanned by server.
func NewScanReport(path, server string) *ScanReport {
	return &ScanReport{
		FilePath:    path,
		FileName:    filepath.Base(path),
		Server:      server,
		DateScanned: time.Now(),
		Verdict:     VerdictUnknown,
	}
}

// AddPerformedStep records that a pipeline step ran.
func (r *ScanReport) AddPerformedStep(name string) {
	r.PerformedSteps = append(r.PerformedSteps, name)
}

// AddThreat appends a threat unless an identical one is already recorded.
func (r *ScanReport) AddThreat(t Threat) {
	if slices.Contains(r.Threats, t) {
		return
	}
	r.Threats = append(r.Threats, t)
}

// SetError marks the scan as failed with err.
func (r *ScanReport) SetError(err error) {
	if err == nil {
		return
	}
	r.Error = err
	r.ErrorMessage = err.Error()
	r.Verdict = VerdictError
}

// ThreatNames returns the names of all recorded threats in order.
func (r *ScanReport) ThreatNames() []string {
	names := make([]string, 0, len(r.Threats))
	for _, t := range r.Threats {
		names = append(names, t.Name)
	}
	return names
}

// SHA256 returns the sample digest, or "" when the sample was not inspected.
func (r *ScanReport) SHA256() string {
	if r.Sample == nil {
		return ""
	}
	return r.Sample.SHA256
}
