package icap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/proxy"
)

// ResponseChunkSize is the size of each read when collecting a response.
// A read shorter than this is taken as the end of the response.
const ResponseChunkSize = 65565

// State is the lifecycle state of a Connection.
type State int32

const (
	// StateDisconnected means no socket is held.
	StateDisconnected State = iota

	// StateConnecting means a dial is in progress.
	StateConnecting

	// StateConnected means a socket is open and idle.
	StateConnected

	// StateSending means request bytes are being written.
	StateSending

	// StateReceiving means response bytes are being read.
	StateReceiving
)

// String returns the state name used in log output.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSending:
		return "sending"
	case StateReceiving:
		return "receiving"
	default:
		return "unknown"
	}
}

// CancelToken is a single-use cooperative cancellation flag.
//
// Cancel may be called from any goroutine. The connection checks the token
// between attempts; when it observes the flag it clears it and abandons the
// current call, so one Cancel stops exactly one in-flight or next call.
type CancelToken struct {
	flag atomic.Bool
}

// Cancel raises the flag.
func (t *CancelToken) Cancel() {
	t.flag.Store(true)
}

// consume reports whether the flag was raised and lowers it.
func (t *CancelToken) consume() bool {
	return t.flag.CompareAndSwap(true, false)
}

// Pending reports whether the flag is raised without clearing it.
func (t *CancelToken) Pending() bool {
	return t.flag.Load()
}

// outcomeKind tags the result of one attempt.
type outcomeKind int

const (
	outcomeOK outcomeKind = iota
	outcomeRetry
	outcomeFatal
)

// attemptOutcome is the tagged result of a single attempt: ok carries the
// response, retry and fatal carry the error.
type attemptOutcome struct {
	kind     outcomeKind
	response []byte
	err      error
}

func okOutcome(response []byte) attemptOutcome {
	return attemptOutcome{kind: outcomeOK, response: response}
}

func retryOutcome(err error) attemptOutcome {
	return attemptOutcome{kind: outcomeRetry, err: err}
}

func fatalOutcome(err error) attemptOutcome {
	return attemptOutcome{kind: outcomeFatal, err: err}
}

// exchange describes one request to be sent with retries.
type exchange struct {
	// head is written first on every attempt.
	head []byte

	// body, when set, is streamed chunk-encoded after head and rewound to
	// offset 0 before each retry.
	body io.ReadSeeker

	// check validates a received response; a returned error is fatal.
	check func(response []byte) error
}

// Connection owns the single TCP connection to an ICAP server.
//
// A Connection serves one call at a time; concurrent calls must be serialized
// by the caller. Only Close may run concurrently with a call: it raises the
// cancellation token and closes the socket, which makes in-flight I/O fail.
type Connection struct {
	host      string
	port      int
	timeout   time.Duration
	retries   int
	chunkSize int

	dialer proxy.Dialer
	logger *slog.Logger

	// mu guards conn. I/O runs on a copy taken under the lock.
	mu     sync.Mutex
	conn   net.Conn
	state  atomic.Int32
	cancel CancelToken

	// lastConnectSucceeded mirrors whether the most recent dial worked and the
	// connection has not failed since.
	lastConnectSucceeded atomic.Bool
}

// newConnection creates a disconnected Connection. Nothing is dialed until the
// first call.
func newConnection(host string, port int, timeout time.Duration, retries, chunkSize int, dialer proxy.Dialer, logger *slog.Logger) *Connection {
	if dialer == nil {
		dialer = &net.Dialer{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if retries < 1 {
		retries = 1
	}
	return &Connection{
		host:      host,
		port:      port,
		timeout:   timeout,
		retries:   retries,
		chunkSize: chunkSize,
		dialer:    dialer,
		logger:    logger,
	}
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// Connected reports whether the last connection attempt succeeded and the
// connection has not failed since.
func (c *Connection) Connected() bool {
	return c.lastConnectSucceeded.Load()
}

func (c *Connection) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Connection) address() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// do runs ex with up to c.retries attempts.
//
// It returns (nil, nil) when the cancellation token was observed. Errors that
// survive the last attempt are wrapped in ErrConnectionFailure.
func (c *Connection) do(ctx context.Context, ex exchange) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retries; attempt++ {
		if c.cancel.consume() {
			c.logger.Debug("icap call cancelled", "host", c.address(), "attempt", attempt)
			return nil, nil
		}
		if err := ctx.Err(); err != nil {
			c.reset()
			return nil, err
		}

		out := c.attempt(ctx, ex)
		switch out.kind {
		case outcomeOK:
			c.logger.Debug("icap exchange complete",
				"host", c.address(),
				"attempt", attempt,
				"bytes", len(out.response),
			)
			return out.response, nil

		case outcomeFatal:
			c.reset()
			return nil, out.err

		case outcomeRetry:
			lastErr = out.err
			c.reset()
			if ex.body != nil {
				if _, err := ex.body.Seek(0, io.SeekStart); err != nil {
					return nil, fmt.Errorf("icap: rewinding body: %w", err)
				}
			}
			c.logger.Warn("icap attempt failed",
				"host", c.address(),
				"attempt", attempt,
				"retries", c.retries,
				"error", out.err,
			)
		}
	}

	return nil, fmt.Errorf("%w: %s after %d attempt(s): %w", ErrConnectionFailure, c.address(), c.retries, lastErr)
}

// attempt performs one connect-send-receive cycle.
func (c *Connection) attempt(ctx context.Context, ex exchange) attemptOutcome {
	conn := c.current()
	if conn == nil {
		var err error
		if conn, err = c.connect(ctx); err != nil {
			return retryOutcome(err)
		}
	}

	c.setState(StateSending)
	if err := c.write(conn, ex.head); err != nil {
		return retryOutcome(err)
	}

	if ex.body != nil {
		for chunk, err := range EncodeChunks(ex.body, c.chunkSize) {
			if err != nil {
				return retryOutcome(fmt.Errorf("reading body: %w", err))
			}
			if err := c.write(conn, chunk); err != nil {
				return retryOutcome(err)
			}
		}
	}

	c.setState(StateReceiving)
	response, err := c.receive(conn)
	if err != nil {
		return retryOutcome(err)
	}
	c.setState(StateConnected)

	if ex.check != nil {
		if err := ex.check(response); err != nil {
			return fatalOutcome(err)
		}
	}
	return okOutcome(response)
}

// current returns the open socket, or nil when disconnected.
func (c *Connection) current() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// connect dials the server, honouring ctx when the dialer supports it.
func (c *Connection) connect(ctx context.Context) (net.Conn, error) {
	c.setState(StateConnecting)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var (
		conn net.Conn
		err  error
	)
	if cd, ok := c.dialer.(proxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, "tcp", c.address())
	} else {
		conn, err = c.dialer.Dial("tcp", c.address())
	}
	if err != nil {
		c.lastConnectSucceeded.Store(false)
		c.setState(StateDisconnected)
		return nil, fmt.Errorf("dial %s: %w", c.address(), err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.lastConnectSucceeded.Store(true)
	c.setState(StateConnected)
	return conn, nil
}

// write sends all of b, applying the per-operation timeout.
func (c *Connection) write(conn net.Conn, b []byte) error {
	if c.timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return err
		}
	}
	for len(b) > 0 {
		n, err := conn.Write(b)
		if err != nil {
			return fmt.Errorf("send: %w", err)
		}
		b = b[n:]
	}
	return nil
}

// receive reads the response. Reads of ResponseChunkSize continue until one
// comes back short; an empty first read means the peer hung up.
func (c *Connection) receive(conn net.Conn) ([]byte, error) {
	buf := make([]byte, ResponseChunkSize)
	var response []byte

	for first := true; ; first = false {
		if c.timeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
				return nil, err
			}
		}

		n, err := conn.Read(buf)
		response = append(response, buf[:n]...)

		if err != nil {
			if errors.Is(err, io.EOF) {
				if first && n == 0 {
					return nil, ErrEmptyResponse
				}
				return response, nil
			}
			return nil, fmt.Errorf("receive: %w", err)
		}
		if first && n == 0 {
			return nil, ErrEmptyResponse
		}
		if n < ResponseChunkSize {
			return response, nil
		}
	}
}

// reset closes and discards the socket.
func (c *Connection) reset() {
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close() //nolint:errcheck // the socket is being discarded
		c.conn = nil
	}
	c.mu.Unlock()
	c.lastConnectSucceeded.Store(false)
	c.setState(StateDisconnected)
}

// Close raises the cancellation token and closes any open socket.
// It is safe to call more than once.
func (c *Connection) Close() error {
	c.cancel.Cancel()

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	c.lastConnectSucceeded.Store(false)
	c.setState(StateDisconnected)
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
