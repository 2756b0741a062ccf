package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/icapscan/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors so the output can be piped to files or grep without escape
// sequences.
type SimpleWriter struct {
	baseWriter

	// verbose adds digests, ISTag and timing to each sample line.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs one line per sample, followed by detail lines in verbose mode.
//
//	[INFECTED]  /samples/a.exe: Trojan.Test
//	[CLEAN]     /samples/b.txt
func (w *SimpleWriter) Write(report *model.ScanReport) (int, error) {
	var sb strings.Builder
	w.writeLine(&sb, report)
	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeLine(sb *strings.Builder, report *model.ScanReport) {
	tag := "[" + strings.ToUpper(report.Verdict.String()) + "]"
	fmt.Fprintf(sb, "%-12s%s", tag, report.FilePath)

	switch {
	case len(report.Threats) > 0:
		sb.WriteString(": " + strings.Join(report.ThreatNames(), ", "))
	case report.ErrorMessage != "":
		sb.WriteString(": " + report.ErrorMessage)
	}
	if report.Cached {
		sb.WriteString(" (cached)")
	}
	sb.WriteString("\n")

	if !w.verbose {
		return
	}
	if report.Sample != nil {
		fmt.Fprintf(sb, "            sha256:   %s\n", report.Sample.SHA256)
		fmt.Fprintf(sb, "            sha3-256: %s\n", report.Sample.SHA3256)
		fmt.Fprintf(sb, "            type:     %s (%d bytes)\n", report.Sample.MIMEType, report.Sample.Size)
		if exif := report.Sample.EXIF; exif != nil {
			fmt.Fprintf(sb, "            exif:     %d tags, camera %q, gps %t\n",
				exif.TagCount, strings.TrimSpace(exif.Make+" "+exif.Model), exif.HasGPS)
		}
	}
	if report.ISTag != "" {
		fmt.Fprintf(sb, "            istag:    %s\n", report.ISTag)
	}
	if report.Vendor != "" {
		fmt.Fprintf(sb, "            shape:    %s\n", report.Vendor)
	}
	fmt.Fprintf(sb, "            took:     %s\n", report.Duration.Round(time.Millisecond))
}

// WriteSummary outputs a header, the verdict counts and the failed samples.
func (w *SimpleWriter) WriteSummary(summary *model.BatchSummary) (int, error) {
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                          ICAPSCAN SUMMARY\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "Server:    %s\n", summary.Server)
	fmt.Fprintf(&sb, "Started:   %s\n", summary.Started.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&sb, "Elapsed:   %s\n", summary.Finished.Sub(summary.Started).Round(time.Millisecond))
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "  CLEAN:     %d\n", summary.Clean)
	fmt.Fprintf(&sb, "  INFECTED:  %d\n", summary.Infected)
	fmt.Fprintf(&sb, "  ERRORS:    %d\n", summary.Errors)
	if summary.Cancelled > 0 {
		fmt.Fprintf(&sb, "  CANCELLED: %d\n", summary.Cancelled)
	}
	fmt.Fprintf(&sb, "  TOTAL:     %d samples (%d cached)\n", summary.Total, summary.Cached)
	sb.WriteString("\n")

	if summary.Failed() {
		sb.WriteString(strings.Repeat("-", 70))
		sb.WriteString("\n")
		sb.WriteString("FAILED SAMPLES\n")
		sb.WriteString(strings.Repeat("-", 70))
		sb.WriteString("\n\n")
		for _, r := range summary.Reports {
			if r.Verdict.IsFailure() {
				w.writeLine(&sb, r)
			}
		}
		sb.WriteString("\n")
	}

	return io.WriteString(w.output, sb.String())
}
