// Package main provides the entry point for the icapscan CLI.
//
// icapscan submits files to an ICAP (RFC 3507) antivirus server with
// RESPMOD and reports whether each one is clean or infected.
//
// Usage:
//
//	icapscan scan --host av.example.com ./downloads
//	icapscan options --host av.example.com
//	icapscan history ./downloads/setup.exe
//
// See --help for all available options.
package main

// main is the entry point for icapscan.
func main() {
	Execute()
}
