package main

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/net/proxy"

	"github.com/nao1215/icapscan/internal/config"
	"github.com/nao1215/icapscan/internal/icap"
	seclog "github.com/nao1215/icapscan/internal/log"
	"github.com/nao1215/icapscan/internal/pipeline"
)

// addServerFlags registers the flags that describe how to reach the ICAP
// server. scan and options share them.
func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().String("host", "",
		"ICAP server host name or IP address")
	cmd.Flags().IntP("port", "p", config.DefaultPort,
		"ICAP server port")
	cmd.Flags().StringP("service", "s", config.DefaultService,
		"ICAP service path")
	cmd.Flags().String("action", "",
		"Suffix appended to the service path on RESPMOD requests")
	cmd.Flags().StringP("server", "S", "",
		"Server profile from the configuration file")
	cmd.Flags().String("socks", "",
		"SOCKS5 proxy in front of the server ([user:pass@]host:port)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Network timeout for each connect, read and write")
	cmd.Flags().IntP("retries", "r", config.DefaultRetries,
		"Attempts per request before giving up")
	cmd.Flags().Int("chunk-size", config.DefaultChunkSize,
		"Payload bytes per chunk sent to the server")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .icapscan in current or home directory)")
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildServerConfig resolves the server settings. Later sources win:
// built-in defaults, the configuration file, the --server profile, then
// flags the user actually set.
func buildServerConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Verbose = getVerboseFlag(cmd)

	var err error
	if cfg.ConfigFilePath, err = cmd.Flags().GetString("config"); err != nil {
		return nil, err
	}
	if cfg.Server, err = cmd.Flags().GetString("server"); err != nil {
		return nil, err
	}

	// A missing file is only an error when the user named it.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.Servers, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.Servers = &config.File{Servers: make(map[string]config.ServerConfig)}
	}

	sc, err := cfg.Servers.GetServerConfig(cfg.Server)
	if err != nil {
		if names := cfg.Servers.ServerNames(); len(names) > 0 {
			return nil, fmt.Errorf("%w (available: %s)", err, strings.Join(names, ", "))
		}
		return nil, err
	}
	cfg.ApplyServerConfig(sc)

	flags := cmd.Flags()
	if flags.Changed("host") {
		if cfg.Host, err = flags.GetString("host"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("port") {
		if cfg.Port, err = flags.GetInt("port"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("service") {
		if cfg.Service, err = flags.GetString("service"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("action") {
		if cfg.Action, err = flags.GetString("action"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("socks") {
		if cfg.SocksProxy, err = flags.GetString("socks"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("retries") {
		if cfg.Retries, err = flags.GetInt("retries"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("chunk-size") {
		if cfg.ChunkSize, err = flags.GetInt("chunk-size"); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// setupLogger creates the secure structured logger used by every command.
// --log-json switches the output to one JSON object per line.
func setupLogger(cmd *cobra.Command, verbose bool) *slog.Logger {
	w := cmd.ErrOrStderr()
	if asJSON, err := cmd.Flags().GetBool("log-json"); err == nil && asJSON {
		return seclog.NewSecureJSONLogger(w, verbose)
	}
	return seclog.NewSecureLogger(w, verbose)
}

// newDialer returns the dialer for cfg: a SOCKS5 dialer when a proxy is
// configured, otherwise nil so the client dials directly.
func newDialer(cfg *config.Config) (proxy.Dialer, error) {
	if cfg.SocksProxy == "" {
		return nil, nil
	}

	raw := cfg.SocksProxy
	if !strings.Contains(raw, "://") {
		raw = "socks5://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid SOCKS proxy %q: %w", cfg.SocksProxy, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid SOCKS proxy %q: missing host", cfg.SocksProxy)
	}

	var auth *proxy.Auth
	if u.User != nil {
		password, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: password}
	}

	d, err := proxy.SOCKS5("tcp", u.Host, auth, &net.Dialer{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	return d, nil
}

// newClient creates an ICAP client for cfg.
func newClient(cfg *config.Config, logger *slog.Logger) (*icap.Client, error) {
	opts := []icap.Option{
		icap.WithService(cfg.Service),
		icap.WithAction(cfg.Action),
		icap.WithTimeout(cfg.Timeout),
		icap.WithRetries(cfg.Retries),
		icap.WithChunkSize(cfg.ChunkSize),
		icap.WithLogger(logger),
	}

	dialer, err := newDialer(cfg)
	if err != nil {
		return nil, err
	}
	if dialer != nil {
		opts = append(opts, icap.WithDialer(dialer))
	}

	return icap.NewClient(cfg.Host, cfg.Port, opts...)
}

// newClientFactory adapts newClient for the scan pipeline, which needs a
// fresh client per sample.
func newClientFactory(cfg *config.Config, logger *slog.Logger) pipeline.ClientFactory {
	return func() (pipeline.Scanner, error) {
		client, err := newClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// serverLabel identifies the ICAP service in reports and in the history
// database, e.g. "icap://av.example:1344/avscan?allow204=on". The action is
// part of the label so cached verdicts are not shared across actions.
func serverLabel(cfg *config.Config) string {
	return "icap://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)) + "/" + strings.TrimPrefix(cfg.Service, "/") + cfg.Action
}
