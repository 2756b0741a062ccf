package icap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/net/proxy"
)

// Client defaults.
const (
	// DefaultService is the RESPMOD service path used by most AV servers.
	DefaultService = "av/respmod"

	// DefaultTimeout applies to each dial, write and read.
	DefaultTimeout = 30 * time.Second

	// DefaultRetries is the number of attempts made per call.
	DefaultRetries = 3
)

// optionsOK is the prefix every acceptable OPTIONS response starts with.
var optionsOK = []byte("ICAP/1.0 200 OK")

// Client is a limited ICAP client that submits data for scanning with
// RESPMOD and probes servers with OPTIONS.
//
// A Client holds one connection and must not be used by several goroutines at
// once, except for Close. Create one Client per concurrent scan.
type Client struct {
	host    string
	port    int
	service string
	action  string

	timeout   time.Duration
	retries   int
	chunkSize int
	dialer    proxy.Dialer
	logger    *slog.Logger

	conn *Connection
}

// Option configures a Client.
type Option func(*Client)

// WithService sets the service path, e.g. "avscan" or "av/respmod".
func WithService(service string) Option {
	return func(c *Client) {
		c.service = service
	}
}

// WithAction sets a suffix appended to the service path on RESPMOD requests
// (for example "?allow204=on").
func WithAction(action string) Option {
	return func(c *Client) {
		c.action = action
	}
}

// WithTimeout sets the per-operation network timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithRetries sets how many attempts each call may make. Values below one are
// treated as one.
func WithRetries(n int) Option {
	return func(c *Client) {
		c.retries = n
	}
}

// WithChunkSize sets the payload size of each chunk sent to the server.
func WithChunkSize(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithDialer sets the dialer used to reach the server, e.g. a SOCKS5 dialer
// from golang.org/x/net/proxy.
func WithDialer(d proxy.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithLogger sets the logger for connection events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the ICAP server at host:port.
// No connection is made until the first call.
func NewClient(host string, port int, opts ...Option) (*Client, error) {
	if host == "" || port < 1 || port > 65535 {
		return nil, fmt.Errorf("%w: %q:%d", ErrInvalidAddress, host, port)
	}

	c := &Client{
		host:      host,
		port:      port,
		service:   DefaultService,
		timeout:   DefaultTimeout,
		retries:   DefaultRetries,
		chunkSize: DefaultChunkSize,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.dialer == nil {
		c.dialer = &net.Dialer{Timeout: c.timeout}
	}

	c.conn = newConnection(c.host, c.port, c.timeout, c.retries, c.chunkSize, c.dialer, c.logger)
	return c, nil
}

// Address returns the server address in host:port form.
func (c *Client) Address() string {
	return c.conn.address()
}

// Service returns the configured service path.
func (c *Client) Service() string {
	return c.service
}

// Connection exposes the underlying connection for state inspection.
func (c *Client) Connection() *Connection {
	return c.conn
}

// ScanData submits data for scanning and returns the raw ICAP response.
//
// name is placed in the synthetic HTTP request line; DefaultFilename is used
// when it is empty. data is rewound to offset 0 before every retry, so the
// resent body is identical to the first one.
//
// A nil response with a nil error means the call was cancelled by Close.
func (c *Client) ScanData(ctx context.Context, data io.ReadSeeker, name string) ([]byte, error) {
	req := BuildRespmod(c.host, c.port, c.service, c.action, name)

	c.logger.Debug("submitting data for scanning",
		"host", c.Address(),
		"service", c.service,
		"name", name,
	)

	return c.conn.do(ctx, exchange{
		head: req.Bytes(),
		body: data,
	})
}

// ScanLocalFile submits the file at path; its base name is used in the
// synthetic request.
func (c *Client) ScanLocalFile(ctx context.Context, path string) ([]byte, error) {
	f, err := os.Open(path) //nolint:gosec // scanning user-selected files is the purpose
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return c.ScanData(ctx, f, filepath.Base(path))
}

// OptionsRespmod sends an OPTIONS request for the configured service.
// A response that does not start with "ICAP/1.0 200 OK" fails with
// ErrProtocolMismatch and is not retried.
//
// A nil response with a nil error means the call was cancelled by Close.
func (c *Client) OptionsRespmod(ctx context.Context) ([]byte, error) {
	req := BuildOptions(c.host, c.port, c.service)

	return c.conn.do(ctx, exchange{
		head: req.Bytes(),
		check: func(response []byte) error {
			if !bytes.HasPrefix(response, optionsOK) {
				return fmt.Errorf("%w: unexpected OPTIONS response %q", ErrProtocolMismatch, truncateForError(response))
			}
			return nil
		},
	})
}

// Close cancels the next or in-flight call and closes the connection.
// It may be called from another goroutine and more than once.
func (c *Client) Close() error {
	return c.conn.Close()
}
