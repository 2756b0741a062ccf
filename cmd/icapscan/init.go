package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/icapscan/internal/config"
)

//go:embed templates/icapscan.yaml
var configTemplate embed.FS

// templatePath is the location of the configuration template inside configTemplate.
const templatePath = "templates/icapscan.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an icapscan configuration file",
		Long: `Init writes a commented .icapscan configuration file.

The generated file includes:
- Default server settings (port, service, timeout, retries, chunk size)
- Commented examples of named server profiles
- The lookup order icapscan uses to find the file

Examples:
  # Create .icapscan in current directory
  icapscan init

  # Create config file at a specific path
  icapscan init -o ~/.config/icapscan/config.yaml

  # Force overwrite existing file
  icapscan init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Profiles may name proxies with credentials, keep the file private
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to describe your ICAP servers:")
	fmt.Fprintln(out, "  - Host, port and service path per server profile")
	fmt.Fprintln(out, "  - SOCKS5 proxies in front of remote servers")
	fmt.Fprintln(out, "  - Timeouts, retries and chunk size")

	return nil
}
