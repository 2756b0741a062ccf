// Package report renders scan results.
//
// Three Writers share one interface, so the scan command can pick one by
// flag or combine them with MultiWriter:
//   - SimpleWriter prints one line per sample and a plain text summary
//   - JSONWriter and FullJSONWriter emit reports and summaries as JSON
//   - MarkdownWriter builds tables, a mermaid verdict pie and a GFM alert
//
// Writers only read model values. A report loaded from the history
// database renders exactly like a fresh one.
package report
