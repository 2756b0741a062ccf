package icap

import "errors"

// ICAP client errors.
// Callers should use errors.Is to classify failures: the connection-level
// errors are retried by the client before being surfaced, everything else is
// returned on the first occurrence.
var (
	// ErrConnectionFailure is returned when connecting, sending or receiving
	// failed on every permitted attempt. The last underlying error is wrapped.
	ErrConnectionFailure = errors.New("icap: connection failure")

	// ErrEmptyResponse is returned when the server closed the connection
	// without sending a single byte. It is retried like a socket error.
	ErrEmptyResponse = errors.New("icap: empty response from server")

	// ErrProtocolMismatch is returned when a status line carries a protocol
	// token other than ICAP/1.0, or an OPTIONS response is not "200 OK".
	ErrProtocolMismatch = errors.New("icap: protocol mismatch")

	// ErrMissingStatusLine is returned when a status line was expected but the
	// first line of the response is blank.
	ErrMissingStatusLine = errors.New("icap: no status line in response")

	// ErrMalformedStatusLine is returned when the status code is not a number.
	ErrMalformedStatusLine = errors.New("icap: malformed status line")

	// ErrFraming is returned when chunked data violates the framing rules.
	ErrFraming = errors.New("icap: chunk framing violation")

	// ErrMalformedEncapsulated is returned when an Encapsulated header cannot
	// be parsed or its offsets point outside the message.
	ErrMalformedEncapsulated = errors.New("icap: malformed Encapsulated header")

	// ErrInvalidAddress is returned by NewClient for an empty host or a port
	// outside 1-65535.
	ErrInvalidAddress = errors.New("icap: invalid server address")
)
