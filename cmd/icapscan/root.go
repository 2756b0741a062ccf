package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit statuses. An infected sample is reported separately from a sample
// that could not be scanned so scripts can tell the two apart.
const (
	exitInfected = 1
	exitFailure  = 2
)

// errInfected is returned by scan when at least one sample is infected.
var errInfected = errors.New("infected samples found")

// NewRootCmd creates the root command for icapscan.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "icapscan",
		Short: "Scan files with an ICAP antivirus server",
		Long: `icapscan submits files to an ICAP (RFC 3507) server with RESPMOD and
reports whether each one is clean or infected.

Verdicts are stored in a local history database and reused for samples
the same server has scanned recently. Server profiles can be kept in a
.icapscan configuration file (see "icapscan init").`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs to stderr as JSON")

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewOptionsCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	err := NewRootCmd().Execute()
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(exitCode(err))
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	if errors.Is(err, errInfected) {
		return exitInfected
	}
	return exitFailure
}
