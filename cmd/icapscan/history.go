package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/icapscan/internal/config"
	"github.com/nao1215/icapscan/internal/database"
	"github.com/nao1215/icapscan/internal/report"
	"github.com/nao1215/icapscan/internal/sample"
)

// sha256Pattern matches a hex SHA-256 digest.
var sha256Pattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// historyTimeLayout is how scan times are shown in history tables.
const historyTimeLayout = "2006-01-02 15:04:05"

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [sha256|path]",
		Short: "Show stored scan verdicts",
		Long: `History reads the scan history database.

Without arguments it lists every sample that has been scanned. Given a
SHA-256 digest or a file path it lists every stored verdict for that
sample, newest first. With --id it prints one stored report in full.

Examples:
  # List scanned samples
  icapscan history

  # Show verdicts for a file
  icapscan history ./download.zip

  # Show verdicts for a digest
  icapscan history 275a021bbfb6489e54d471899f7db9d1663fc695ec2fe2a2c4538aabf651fd0f

  # Print stored report 42 as JSON
  icapscan history --id 42 -j`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")
	cmd.Flags().Int64("id", 0,
		"Print the stored report with this ID")
	cmd.Flags().BoolP("json", "j", false,
		"Print the report selected with --id as JSON")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	id, err := cmd.Flags().GetInt64("id")
	if err != nil {
		return err
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case id != 0:
		return showReport(ctx, out, db, id, asJSON)
	case len(args) == 0:
		return listSamples(ctx, out, db)
	default:
		digest, err := resolveDigest(args[0])
		if err != nil {
			return err
		}
		return showHistory(ctx, out, db, digest)
	}
}

// resolveDigest returns arg itself when it is a SHA-256 digest, otherwise
// the digest of the file it names.
func resolveDigest(arg string) (string, error) {
	if sha256Pattern.MatchString(arg) {
		if _, err := os.Stat(arg); err != nil {
			return strings.ToLower(arg), nil
		}
	}

	info, err := sample.Inspect(arg)
	if err != nil {
		return "", fmt.Errorf("%s is neither a SHA-256 digest nor a readable file: %w", arg, err)
	}
	return info.SHA256, nil
}

// listSamples prints one line per distinct sample.
func listSamples(ctx context.Context, out io.Writer, db *database.ScanDB) error {
	samples, err := db.ListScannedSamples(ctx)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		_, err := fmt.Fprintln(out, "No scans recorded.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SHA256\tSCANS\tLAST SCANNED\tPATH")
	for _, s := range samples {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", s.SHA256, s.Scans, formatTime(s.LastScanned), s.FilePath)
	}
	return tw.Flush()
}

// showHistory prints every stored scan of one sample.
func showHistory(ctx context.Context, out io.Writer, db *database.ScanDB, digest string) error {
	records, err := db.GetScanHistory(ctx, digest)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		_, err := fmt.Fprintf(out, "No scans recorded for %s.\n", digest)
		return err
	}

	fmt.Fprintf(out, "History for %s\n\n", digest)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSCANNED\tVERDICT\tSERVER\tTHREATS")
	for _, rec := range records {
		threats := "-"
		if len(rec.Threats) > 0 {
			threats = strings.Join(rec.Threats, ", ")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			rec.ID, formatTime(rec.Timestamp), rec.Verdict, rec.Server, threats)
	}
	return tw.Flush()
}

// showReport prints one stored report.
func showReport(ctx context.Context, out io.Writer, db *database.ScanDB, id int64, asJSON bool) error {
	r, err := db.GetScanReportByID(ctx, id)
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("no scan report with ID %d", id)
	}

	var w report.Writer = report.NewSimpleWriter(out, report.WithVerbose(true))
	if asJSON {
		w = report.NewJSONWriter(out, report.WithPrettyPrint())
	}
	_, err = w.Write(r)
	return err
}

// formatTime renders t in local time, or "-" for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(historyTimeLayout)
}
