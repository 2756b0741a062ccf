// Package icap implements a small Internet Content Adaptation Protocol
// (RFC 3507) client for submitting files to content scanners such as
// antivirus engines.
//
// Only two methods are supported:
//   - OPTIONS, to probe a service and confirm the server speaks ICAP/1.0
//   - RESPMOD, to wrap the data in a synthetic HTTP response and have the
//     server adapt (or refuse) it
//
// # Wire format
//
// A RESPMOD request consists of the ICAP head, a fake HTTP request line, a
// fake HTTP response head declaring chunked transfer encoding, and the data as
// a chunked body:
//
//	RESPMOD icap://av.example:1344/av/respmod ICAP/1.0
//	Host: av.example:1344
//	Allow: 204
//	Encapsulated: req-hdr=0, res-hdr=28, res-body=75
//
//	GET /sample.exe HTTP/1.1
//
//	HTTP/1.1 200 OK
//	Transfer-Encoding: chunked
//
//	1FE0
//	...
//	0
//
// # Connection handling
//
// Each Client owns a single lazily dialed TCP connection. A call makes up to
// the configured number of attempts; on any socket failure (or an empty
// response) the connection is discarded, the body is rewound to offset 0 and
// the request is sent again. Close raises a single-use cancellation token: the
// next check between attempts clears it and the call returns a nil response
// with a nil error.
//
// # Parsing responses
//
// Scanners disagree on how to report findings. ParseHeaders is deliberately
// lenient (quoted values, folded lines, missing status lines, and with
// WithBodyHeaders a header block hidden in the encapsulated body), while
// SplitResponse slices the encapsulated HTTP message out of a response using
// its Encapsulated offsets.
package icap
