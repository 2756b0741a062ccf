package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/nao1215/icapscan/internal/icap"
)

// NewOptionsCmd creates the options command.
func NewOptionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "options",
		Short: "Query the capabilities of an ICAP service",
		Long: `Options sends an ICAP OPTIONS request to the RESPMOD service and prints
the status line and headers of the answer (Methods, ISTag, Preview,
Max-Connections, Options-TTL and any vendor headers).

It is a quick way to check that a server is reachable and that the
service path is right before scanning.

Examples:
  # Query a local c-icap server
  icapscan options --host 127.0.0.1 --service avscan

  # Query the "sophos" profile from .icapscan as JSON
  icapscan options -S sophos -j`,
		Args: cobra.NoArgs,
		RunE: runOptionsCmd,
	}

	addServerFlags(cmd)
	cmd.Flags().BoolP("json", "j", false, "Output the parsed headers as JSON")

	return cmd
}

// optionsResult is the JSON form of an OPTIONS answer.
type optionsResult struct {
	Server        string            `json:"server"`
	StatusCode    int               `json:"status_code"`
	StatusMessage string            `json:"status_message"`
	Headers       map[string]string `json:"headers"`
}

// runOptionsCmd executes the options command.
func runOptionsCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildServerConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	logger := setupLogger(cmd, cfg.Verbose)
	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	block, err := queryOptions(cmd.Context(), client)
	if err != nil {
		return err
	}

	result := optionsResult{
		Server:        serverLabel(cfg),
		StatusCode:    block.StatusCode,
		StatusMessage: string(block.StatusMessage),
		Headers:       block.Headers,
	}
	if asJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}
	return printOptions(cmd.OutOrStdout(), result)
}

// queryOptions sends OPTIONS and parses the answer's header section.
func queryOptions(ctx context.Context, client *icap.Client) (*icap.HeaderBlock, error) {
	raw, err := client.OptionsRespmod(ctx)
	if err != nil {
		return nil, fmt.Errorf("OPTIONS request failed: %w", err)
	}
	if raw == nil {
		return nil, errors.New("OPTIONS request was cancelled")
	}

	block, err := icap.ParseHeaders(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OPTIONS response: %w", err)
	}
	return block, nil
}

// printOptions writes the status line followed by the headers sorted by name.
func printOptions(w io.Writer, result optionsResult) error {
	if _, err := fmt.Fprintf(w, "%s %d %s\n", icap.ProtocolVersion, result.StatusCode, result.StatusMessage); err != nil {
		return err
	}
	for _, name := range slices.Sorted(maps.Keys(result.Headers)) {
		if _, err := fmt.Fprintf(w, "%s: %s\n", name, result.Headers[name]); err != nil {
			return err
		}
	}
	return nil
}
