// Package model holds the types that travel between the scan pipeline, the
// history database and the report writers.
//
//   - ScanReport: one sample scanned by one ICAP server
//   - SampleInfo: size, digests, content type and EXIF summary of the sample
//   - Verdict: clean, infected, error, cancelled or unknown
//   - BatchSummary: verdict counts over a scan run
//
// Every type marshals to JSON. The database stores reports in that form, so
// a report read back from history is the same value that was written.
package model
