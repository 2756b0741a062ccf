package icap

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// ProtocolVersion is the only protocol token accepted on a status line.
const ProtocolVersion = "ICAP/1.0"

// HeaderBlock is the parsed form of an ICAP header section.
//
// StatusCode and StatusMessage are only meaningful when HasStatus is true.
// A block parsed without a status line keeps HasStatus false, which is how a
// missing status line is told apart from a literal code 0.
type HeaderBlock struct {
	// HasStatus reports whether a status line was parsed.
	HasStatus bool

	// StatusCode is the numeric ICAP status code (e.g. 200, 204).
	StatusCode int

	// StatusMessage is the reason phrase following the status code.
	StatusMessage []byte

	// Headers maps upper-cased header names to their values.
	// When a name occurs more than once the last value wins.
	Headers map[string]string
}

// Get returns the value of the named header, ignoring case.
func (h *HeaderBlock) Get(name string) string {
	if h == nil || h.Headers == nil {
		return ""
	}
	return h.Headers[strings.ToUpper(strings.TrimSpace(name))]
}

// Lookup is like Get but also reports whether the header was present.
func (h *HeaderBlock) Lookup(name string) (string, bool) {
	if h == nil || h.Headers == nil {
		return "", false
	}
	v, ok := h.Headers[strings.ToUpper(strings.TrimSpace(name))]
	return v, ok
}

// parseOptions holds the switches accepted by ParseHeaders.
type parseOptions struct {
	checkBodyForHeaders   bool
	noStatusLineInHeaders bool
}

// ParseOption configures ParseHeaders.
type ParseOption func(*parseOptions)

// WithBodyHeaders makes the parser treat the block after the first blank line
// as more header lines instead of stopping there. Some scanners return their
// findings as a header-shaped encapsulated HTTP body; this option is the only
// way to read those and it is never switched on implicitly.
func WithBodyHeaders() ParseOption {
	return func(o *parseOptions) {
		o.checkBodyForHeaders = true
	}
}

// WithoutStatusLine tells the parser the buffer may start directly with
// header lines. A buffer that still begins with "ICAP/1.0" is parsed with its
// status line as usual.
func WithoutStatusLine() ParseOption {
	return func(o *parseOptions) {
		o.noStatusLineInHeaders = true
	}
}

// lineReader hands out '\n' separated lines with '\r' trimmed from both ends.
type lineReader struct {
	rest []byte
}

func (l *lineReader) next() []byte {
	line, rest, _ := bytes.Cut(l.rest, []byte("\n"))
	l.rest = rest
	return bytes.Trim(line, "\r")
}

// ParseHeaders parses a status line and header section out of body.
//
// Header values are left-trimmed, lose exactly one pair of wrapping quotes,
// and absorb continuation lines (lines starting with a space or tab) joined by
// a single space. Headers whose value ends up empty are not stored; this keeps
// HTTP status lines and chunk-size lines out of the map when WithBodyHeaders
// walks into an encapsulated message.
func ParseHeaders(body []byte, opts ...ParseOption) (*HeaderBlock, error) {
	var o parseOptions
	for _, opt := range opts {
		opt(&o)
	}

	lines := &lineReader{rest: body}
	block := &HeaderBlock{Headers: make(map[string]string)}

	if !o.noStatusLineInHeaders || bytes.HasPrefix(bytes.TrimSpace(body), []byte(ProtocolVersion)) {
		if err := parseStatusLine(block, lines.next(), body); err != nil {
			return nil, err
		}
	}

	pending := lines.next()
	for len(pending) > 0 {
		name, content, _ := bytes.Cut(pending, []byte(":"))
		content = bytes.TrimLeft(content, " \t\r\n\v\f")
		content = stripQuotes(content)

		pending = lines.next()
		for len(pending) > 0 && (pending[0] == ' ' || pending[0] == '\t') {
			folded := make([]byte, 0, len(content)+len(pending))
			folded = append(folded, content...)
			folded = append(folded, ' ')
			folded = append(folded, bytes.TrimLeft(pending[1:], " \t\r\n\v\f")...)
			content = folded
			pending = lines.next()
		}

		if len(content) > 0 {
			block.Headers[strings.ToUpper(strings.TrimSpace(string(name)))] = string(content)
		}

		if o.checkBodyForHeaders && len(pending) == 0 {
			pending = lines.next()
		}
	}

	return block, nil
}

// parseStatusLine fills the status fields of block from line.
// body is only used to make error messages useful.
func parseStatusLine(block *HeaderBlock, line, body []byte) error {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return fmt.Errorf("%w: %q", ErrMissingStatusLine, truncateForError(body))
	}

	protocol, rest, _ := bytes.Cut(line, []byte(" "))
	if string(protocol) != ProtocolVersion {
		return fmt.Errorf("%w: unknown protocol %q", ErrProtocolMismatch, protocol)
	}

	codeField, message, _ := bytes.Cut(rest, []byte(" "))
	code, err := strconv.Atoi(string(bytes.TrimSpace(codeField)))
	if err != nil {
		return fmt.Errorf("%w: status code %q", ErrMalformedStatusLine, codeField)
	}

	block.HasStatus = true
	block.StatusCode = code
	block.StatusMessage = bytes.Clone(message)
	if block.StatusMessage == nil {
		block.StatusMessage = []byte{}
	}
	return nil
}

// stripQuotes removes one pair of matching double or single quotes that wrap
// the whole value. Interior quotes are left alone.
func stripQuotes(v []byte) []byte {
	if len(v) < 2 {
		return v
	}
	for _, q := range []byte{'"', '\''} {
		if v[0] == q && v[len(v)-1] == q {
			return v[1 : len(v)-1]
		}
	}
	return v
}

// truncateForError keeps error strings bounded when the server sends a large
// garbage response.
func truncateForError(b []byte) []byte {
	const limit = 256
	if len(b) <= limit {
		return b
	}
	return b[:limit]
}
