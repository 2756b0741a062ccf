package icap

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Encapsulated section names.
const (
	SectionReqHdr   = "req-hdr"
	SectionResHdr   = "res-hdr"
	SectionReqBody  = "req-body"
	SectionResBody  = "res-body"
	SectionOptBody  = "opt-body"
	SectionNullBody = "null-body"
)

// Section is one entry of an Encapsulated header.
type Section struct {
	Name   string
	Offset int
}

// isBody reports whether the section marks the (possibly empty) body, which
// must be the last entry.
func (s Section) isBody() bool {
	switch s.Name {
	case SectionReqBody, SectionResBody, SectionOptBody, SectionNullBody:
		return true
	}
	return false
}

// ParseEncapsulated parses an Encapsulated header value such as
// "res-hdr=0, res-body=137". Offsets must not decrease and a body entry may
// only appear last.
func ParseEncapsulated(value string) ([]Section, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%w: empty value", ErrMalformedEncapsulated)
	}

	var sections []Section
	for _, item := range strings.Split(value, ",") {
		name, offset, found := strings.Cut(strings.TrimSpace(item), "=")
		if !found {
			return nil, fmt.Errorf("%w: %q", ErrMalformedEncapsulated, value)
		}
		name = strings.ToLower(strings.TrimSpace(name))

		n, err := strconv.Atoi(strings.TrimSpace(offset))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: bad offset in %q", ErrMalformedEncapsulated, item)
		}

		switch name {
		case SectionReqHdr, SectionResHdr, SectionReqBody, SectionResBody, SectionOptBody, SectionNullBody:
		default:
			return nil, fmt.Errorf("%w: unknown section %q", ErrMalformedEncapsulated, name)
		}

		if len(sections) > 0 {
			prev := sections[len(sections)-1]
			if prev.isBody() {
				return nil, fmt.Errorf("%w: %s must be the last section", ErrMalformedEncapsulated, prev.Name)
			}
			if n < prev.Offset {
				return nil, fmt.Errorf("%w: offsets out of order in %q", ErrMalformedEncapsulated, value)
			}
		}
		sections = append(sections, Section{Name: name, Offset: n})
	}

	return sections, nil
}

// Response is an ICAP response split into its parts.
type Response struct {
	// Header is the parsed ICAP status line and headers.
	Header *HeaderBlock

	// Sections is the parsed Encapsulated header; nil when absent.
	Sections []Section

	// HTTPHeader is the raw encapsulated HTTP header block (res-hdr, or
	// req-hdr when the server answered with a request).
	HTTPHeader []byte

	// HTTPStatusCode is the status of the encapsulated HTTP response, or 0.
	HTTPStatusCode int

	// Body is the raw encapsulated body, still chunk-encoded.
	Body []byte

	// Raw is the complete response as received.
	Raw []byte
}

// SplitResponse parses the ICAP head of raw and slices out the encapsulated
// HTTP message using the Encapsulated offsets. A reply cut short by the
// server keeps its ICAP head; sections starting past the received data are
// left empty.
func SplitResponse(raw []byte) (*Response, error) {
	header, err := ParseHeaders(raw)
	if err != nil {
		return nil, err
	}

	resp := &Response{Header: header, Raw: raw}

	encapsulated, ok := header.Lookup("Encapsulated")
	if !ok {
		return resp, nil
	}

	sections, err := ParseEncapsulated(encapsulated)
	if err != nil {
		return nil, err
	}
	resp.Sections = sections

	payload := encapsulatedPayload(raw)
	for i, s := range sections {
		if s.Offset >= len(payload) {
			continue
		}

		end := len(payload)
		if i+1 < len(sections) {
			end = sections[i+1].Offset
			if end > len(payload) {
				end = len(payload)
			}
		}

		switch s.Name {
		case SectionResHdr:
			resp.HTTPHeader = payload[s.Offset:end]
		case SectionReqHdr:
			if resp.HTTPHeader == nil {
				resp.HTTPHeader = payload[s.Offset:end]
			}
		case SectionResBody, SectionReqBody, SectionOptBody:
			resp.Body = payload[s.Offset:]
		}
	}

	resp.HTTPStatusCode = httpStatusCode(resp.HTTPHeader)
	return resp, nil
}

// DecodedBody returns the encapsulated body with chunk framing removed.
func (r *Response) DecodedBody() ([]byte, error) {
	if len(r.Body) == 0 {
		return nil, nil
	}
	return DecodeAll(bytes.NewReader(r.Body))
}

// encapsulatedPayload returns everything after the blank line ending the ICAP
// head. Offsets in the Encapsulated header are relative to this point.
func encapsulatedPayload(raw []byte) []byte {
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return raw[i+4:]
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 {
		return raw[i+2:]
	}
	return nil
}

// httpStatusCode reads the code from an "HTTP/1.x NNN Reason" line.
func httpStatusCode(head []byte) int {
	line, _, _ := bytes.Cut(head, []byte("\n"))
	fields := strings.Fields(string(line))
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return 0
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0
	}
	return code
}
