package report

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/icapscan/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing, e.g. attaching a
// scan result to a ticket.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides tables, mermaid charts and GitHub-flavored
// markdown alerts without hand-escaping.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs a single sample's report in Markdown format.
func (w *MarkdownWriter) Write(report *model.ScanReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H2(report.FileName)
	md.PlainText("")

	rows := [][]string{
		{"Path", "`" + report.FilePath + "`"},
		{"Verdict", w.verdictText(report.Verdict)},
		{"Server", report.Server},
		{"Scan Date", report.DateScanned.Format("2006-01-02 15:04:05 MST")},
	}
	if report.Sample != nil {
		rows = append(rows,
			[]string{"SHA-256", "`" + report.Sample.SHA256 + "`"},
			[]string{"SHA3-256", "`" + report.Sample.SHA3256 + "`"},
			[]string{"Type", report.Sample.MIMEType},
			[]string{"Size", strconv.FormatInt(report.Sample.Size, 10) + " bytes"},
		)
	}
	if report.ISTag != "" {
		rows = append(rows, []string{"ISTag", "`" + report.ISTag + "`"})
	}
	if report.Cached {
		rows = append(rows, []string{"Cached", "yes"})
	}
	if report.ErrorMessage != "" {
		rows = append(rows, []string{"Error", report.ErrorMessage})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(report.Threats) > 0 {
		w.writeThreatsTable(md, report.Threats)
	}
	if report.Sample != nil && report.Sample.EXIF != nil {
		md.Details("EXIF metadata", exifText(report.Sample.EXIF))
		md.PlainText("")
	}

	return len(md.String()), md.Build()
}

// WriteSummary outputs the batch summary in Markdown format.
func (w *MarkdownWriter) WriteSummary(summary *model.BatchSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeCounts(md, summary)
	w.writeResults(md, summary)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with scan information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, summary *model.BatchSummary) {
	md.H1("icapscan Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Server", "`" + summary.Server + "`"},
			{"Started", summary.Started.Format("2006-01-02 15:04:05 MST")},
			{"Elapsed", summary.Finished.Sub(summary.Started).Round(time.Millisecond).String()},
			{"Samples", strconv.Itoa(summary.Total)},
		},
	})
	md.PlainText("")
}

// writeCounts writes the verdict table, pie chart and alert.
func (w *MarkdownWriter) writeCounts(md *markdown.Markdown, summary *model.BatchSummary) {
	md.H2("Verdicts")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Verdict", "Count"},
		Rows: [][]string{
			{w.verdictText(model.VerdictClean), strconv.Itoa(summary.Clean)},
			{w.verdictText(model.VerdictInfected), strconv.Itoa(summary.Infected)},
			{w.verdictText(model.VerdictError), strconv.Itoa(summary.Errors)},
			{w.verdictText(model.VerdictCancelled), strconv.Itoa(summary.Cancelled)},
			{"**Total**", "**" + strconv.Itoa(summary.Total) + "**"},
		},
	})
	md.PlainText("")

	if summary.Total > 0 {
		w.writePieChart(md, summary)
	}
	w.writeAlert(md, summary)
}

// writePieChart writes a mermaid pie chart of the verdict distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, summary *model.BatchSummary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Verdict Distribution"),
		piechart.WithShowData(true),
	)

	counts := []struct {
		verdict model.Verdict
		n       int
	}{
		{model.VerdictClean, summary.Clean},
		{model.VerdictInfected, summary.Infected},
		{model.VerdictError, summary.Errors},
		{model.VerdictCancelled, summary.Cancelled},
	}
	for _, c := range counts {
		if c.n > 0 {
			chart.LabelAndIntValue(verdictLabel(c.verdict), uint64(c.n)) //nolint:gosec // counts are non-negative
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an appropriate alert based on the verdict counts.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, summary *model.BatchSummary) {
	switch {
	case summary.Infected > 0:
		md.Cautionf(
			"%d infected sample(s) detected: %s.",
			summary.Infected, strings.Join(summary.ThreatNames(), ", "),
		)
	case summary.Errors > 0:
		md.Warningf(
			"%d sample(s) could not be scanned. Their verdict is unknown.",
			summary.Errors,
		)
	case summary.Cancelled > 0:
		md.Importantf("The scan was interrupted; %d sample(s) were not scanned.", summary.Cancelled)
	case summary.Total == 0:
		md.Note("No samples were scanned.")
	default:
		md.Tip("All samples are clean.")
	}
	md.PlainText("")
}

// writeResults writes one table row per sample and the threat details.
func (w *MarkdownWriter) writeResults(md *markdown.Markdown, summary *model.BatchSummary) {
	md.H2("Samples")
	md.PlainText("")

	if len(summary.Reports) == 0 {
		md.PlainText("No samples.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(summary.Reports))
	for i, r := range summary.Reports {
		detail := strings.Join(r.ThreatNames(), ", ")
		if detail == "" {
			detail = r.ErrorMessage
		}
		if detail == "" {
			detail = "-"
		}
		digest := "-"
		if sha := r.SHA256(); sha != "" {
			digest = "`" + shortDigest(sha) + "`"
		}
		rows[i] = []string{
			truncateString(r.FilePath, 60),
			digest,
			w.verdictText(r.Verdict),
			truncateString(detail, 60),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"File", "SHA-256", "Verdict", "Details"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, r := range summary.Reports {
		if len(r.Threats) > 0 {
			w.writeThreatsTable(md, r.Threats, r.FilePath)
		}
	}
}

// writeThreatsTable writes the vendor details of each threat. An optional
// heading names the sample.
func (w *MarkdownWriter) writeThreatsTable(md *markdown.Markdown, threats []model.Threat, heading ...string) {
	if len(heading) > 0 {
		md.PlainText("### " + heading[0])
	} else {
		md.PlainText("### Threats")
	}
	md.PlainText("")

	rows := make([][]string, len(threats))
	for i, t := range threats {
		rows[i] = []string{
			t.Name,
			orDash(t.Type),
			orDash(t.Resolution),
			orDash(t.FileName),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Threat", "Type", "Resolution", "Archive Member"},
		Rows:   rows,
	})
	md.PlainText("")
}

// verdictText returns the verdict label with a status marker.
func (w *MarkdownWriter) verdictText(v model.Verdict) string {
	switch v {
	case model.VerdictClean:
		return "✅ " + verdictLabel(v)
	case model.VerdictInfected:
		return "🔴 " + verdictLabel(v)
	case model.VerdictError:
		return "❌ " + verdictLabel(v)
	case model.VerdictCancelled:
		return "⚠️ " + verdictLabel(v)
	default:
		return verdictLabel(v)
	}
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [icapscan](https://github.com/nao1215/icapscan)*")
}

func exifText(e *model.ExifSummary) string {
	var sb strings.Builder
	sb.WriteString("Tags: " + strconv.Itoa(e.TagCount) + "\n")
	if camera := strings.TrimSpace(e.Make + " " + e.Model); camera != "" {
		sb.WriteString("Camera: " + camera + "\n")
	}
	if e.Software != "" {
		sb.WriteString("Software: " + e.Software + "\n")
	}
	if e.DateTime != "" {
		sb.WriteString("Taken: " + e.DateTime + "\n")
	}
	if e.HasGPS {
		sb.WriteString("GPS coordinates present\n")
	}
	return sb.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
