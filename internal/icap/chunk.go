package icap

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
)

// DefaultChunkSize is the payload size of each chunk written by EncodeChunks
// when the client is not configured otherwise.
const DefaultChunkSize = 8160

// chunkTerminator ends every chunked body.
var chunkTerminator = []byte("0\r\n\r\n")

// EncodeChunks returns a sequence of HTTP/1.1 chunked-encoded blocks read from r.
//
// Each read of up to size bytes becomes one "<HEX>\r\n<data>\r\n" element.
// The first short read (including a read of zero bytes) also carries the
// terminating zero-length chunk and ends the sequence, so a source smaller
// than size is emitted as exactly one element.
//
// The sequence consumes r and cannot be replayed without rewinding it.
// A read error other than io.EOF is yielded once and ends the sequence.
func EncodeChunks(r io.Reader, size int) iter.Seq2[[]byte, error] {
	if size < 1 {
		size = DefaultChunkSize
	}

	return func(yield func([]byte, error) bool) {
		buf := make([]byte, size)
		for {
			n, err := io.ReadFull(r, buf)
			if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				yield(nil, err)
				return
			}

			var out bytes.Buffer
			if n > 0 {
				out.Grow(n + 16)
				fmt.Fprintf(&out, "%X\r\n", n)
				out.Write(buf[:n])
				out.WriteString("\r\n")
			}

			last := n < size
			if last {
				out.Write(chunkTerminator)
			}

			if !yield(out.Bytes(), nil) {
				return
			}
			if last {
				return
			}
		}
	}
}

// DecodeChunks returns the payloads of a chunked body read from r.
//
// Chunk extensions after ';' are ignored. The sequence ends after the
// zero-length chunk; trailers are not consumed. A size line that is not
// hexadecimal, a short payload, or a non-empty line after a payload is
// reported as ErrFraming.
func DecodeChunks(r io.Reader) iter.Seq2[[]byte, error] {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}

	return func(yield func([]byte, error) bool) {
		for {
			line, err := readTrimmedLine(br)
			if err != nil {
				yield(nil, fmt.Errorf("%w: reading chunk size: %w", ErrFraming, err))
				return
			}

			sizeField, _, _ := bytes.Cut(line, []byte(";"))
			length, err := strconv.ParseInt(string(bytes.TrimSpace(sizeField)), 16, 64)
			if err != nil || length < 0 {
				yield(nil, fmt.Errorf("%w: bad chunk size %q", ErrFraming, line))
				return
			}
			if length == 0 {
				return
			}

			data := make([]byte, length)
			if _, err := io.ReadFull(br, data); err != nil {
				yield(nil, fmt.Errorf("%w: short chunk: %w", ErrFraming, err))
				return
			}
			if !yield(data, nil) {
				return
			}

			eol, err := readTrimmedLine(br)
			if err != nil {
				yield(nil, fmt.Errorf("%w: missing chunk terminator: %w", ErrFraming, err))
				return
			}
			if len(eol) != 0 {
				yield(nil, fmt.Errorf("%w: unexpected content %q", ErrFraming, eol))
				return
			}
		}
	}
}

// DecodeAll decodes a complete chunked body into a single buffer.
func DecodeAll(r io.Reader) ([]byte, error) {
	var out bytes.Buffer
	for chunk, err := range DecodeChunks(r) {
		if err != nil {
			return out.Bytes(), err
		}
		out.Write(chunk)
	}
	return out.Bytes(), nil
}

// readTrimmedLine reads one '\n' terminated line with surrounding whitespace
// removed. A final line without a newline is returned as is.
func readTrimmedLine(br *bufio.Reader) ([]byte, error) {
	line, err := br.ReadBytes('\n')
	if err != nil && (!errors.Is(err, io.EOF) || len(line) == 0) {
		return nil, err
	}
	return bytes.TrimSpace(line), nil
}
