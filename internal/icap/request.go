package icap

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Request methods supported by this client.
const (
	MethodOptions = "OPTIONS"
	MethodRespmod = "RESPMOD"
)

// DefaultFilename is used in the synthetic HTTP request when the caller does
// not name the data being scanned.
const DefaultFilename = "filetoscan"

// Synthetic HTTP response head wrapped around the scanned data.
const respmodResponseHeader = "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n"

// EncapsulatedOffsets are the byte offsets announced in the Encapsulated
// header of a RESPMOD request.
type EncapsulatedOffsets struct {
	ReqHdr  int
	ResHdr  int
	ResBody int
}

// String renders the offsets in Encapsulated header syntax.
func (o EncapsulatedOffsets) String() string {
	return fmt.Sprintf("req-hdr=%d, res-hdr=%d, res-body=%d", o.ReqHdr, o.ResHdr, o.ResBody)
}

// RequestHeader describes one ICAP request head. It is built once and not
// modified afterwards; Bytes renders the exact bytes sent on the wire.
type RequestHeader struct {
	Method  string
	Service string
	Action  string
	Host    string
	Port    int

	// Offsets is nil for OPTIONS requests, which carry no encapsulated part.
	Offsets *EncapsulatedOffsets

	// reqHdr and resHdr are the synthetic HTTP heads sent right after the
	// ICAP head of a RESPMOD request.
	reqHdr string
	resHdr string
}

// BuildOptions builds an OPTIONS request for the given service.
func BuildOptions(host string, port int, service string) *RequestHeader {
	return &RequestHeader{
		Method:  MethodOptions,
		Service: service,
		Host:    host,
		Port:    port,
	}
}

// BuildRespmod builds a RESPMOD request whose encapsulated HTTP response will
// carry the scanned data. The filename is embedded in the synthetic GET line
// after non-printable bytes are escaped; URL escaping is up to the caller.
func BuildRespmod(host string, port int, service, action, filename string) *RequestHeader {
	if filename == "" {
		filename = DefaultFilename
	}

	reqHdr := "GET /" + safeString(filename) + " HTTP/1.1\r\n\r\n"
	resHdrOffset := len(reqHdr)

	return &RequestHeader{
		Method:  MethodRespmod,
		Service: service,
		Action:  action,
		Host:    host,
		Port:    port,
		Offsets: &EncapsulatedOffsets{
			ReqHdr:  0,
			ResHdr:  resHdrOffset,
			ResBody: resHdrOffset + len(respmodResponseHeader),
		},
		reqHdr: reqHdr,
		resHdr: respmodResponseHeader,
	}
}

// URI returns the icap:// URI addressed by the request line.
func (r *RequestHeader) URI() string {
	uri := "icap://" + r.authority() + "/" + r.Service
	if r.Method == MethodRespmod {
		uri += r.Action
	}
	return uri
}

func (r *RequestHeader) authority() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// Bytes renders the request head. For RESPMOD this includes the synthetic HTTP
// request and response heads, so the chunked body can follow directly.
func (r *RequestHeader) Bytes() []byte {
	var sb strings.Builder

	sb.WriteString(r.Method)
	sb.WriteString(" ")
	sb.WriteString(r.URI())
	sb.WriteString(" " + ProtocolVersion + "\r\n")

	if r.Method == MethodRespmod && r.Offsets != nil {
		sb.WriteString("Host: " + r.authority() + "\r\n")
		sb.WriteString("Allow: 204\r\n")
		sb.WriteString("Encapsulated: " + r.Offsets.String() + "\r\n")
	}
	sb.WriteString("\r\n")

	sb.WriteString(r.reqHdr)
	sb.WriteString(r.resHdr)

	return []byte(sb.String())
}

// safeString escapes control characters and invalid UTF-8 as \xNN so the
// filename can never break the request line. Printable runes pass through.
func safeString(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if (r != utf8.RuneError || size > 1) && utf8.ValidRune(r) && unicode.IsPrint(r) {
			sb.WriteRune(r)
			i += size
			continue
		}
		for _, b := range []byte(s[i : i+size]) {
			fmt.Fprintf(&sb, "\\x%02x", b)
		}
		i += size
	}
	return sb.String()
}
