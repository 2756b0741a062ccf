// Package database provides SQLite-based storage for icapscan.
//
// The ScanDB keeps one row per scan result, keyed by the sample's SHA-256
// digest and the ICAP server it was sent to. It serves two purposes:
//   - A verdict cache: a sample scanned by the same server recently enough
//     is not sent again
//   - Scan history for the history command
//
// Design decision: We use SQLite (via modernc.org/sqlite) because the
// database is a single file in the XDG data directory and the CGO-free
// driver keeps cross-compilation easy. WAL mode lets the history command
// read while a batch scan is writing.
package database
