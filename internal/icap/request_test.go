package icap

import (
	"bytes"
	"strings"
	"testing"
)

// TestBuildOptions tests the OPTIONS request head.
func TestBuildOptions(t *testing.T) {
	t.Parallel()

	req := BuildOptions("av.example", 1344, "avscan")

	want := "OPTIONS icap://av.example:1344/avscan ICAP/1.0\r\n\r\n"
	if got := string(req.Bytes()); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if req.Offsets != nil {
		t.Error("OPTIONS requests must not carry offsets")
	}
}

// TestBuildRespmod tests the RESPMOD request head and its offsets.
func TestBuildRespmod(t *testing.T) {
	t.Parallel()

	t.Run("renders exact bytes", func(t *testing.T) {
		t.Parallel()

		req := BuildRespmod("av.example", 1344, "av/respmod", "", "sample.exe")

		want := "RESPMOD icap://av.example:1344/av/respmod ICAP/1.0\r\n" +
			"Host: av.example:1344\r\n" +
			"Allow: 204\r\n" +
			"Encapsulated: req-hdr=0, res-hdr=28, res-body=75\r\n" +
			"\r\n" +
			"GET /sample.exe HTTP/1.1\r\n\r\n" +
			"HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n"
		if got := string(req.Bytes()); got != want {
			t.Errorf("expected\n%q\ngot\n%q", want, got)
		}
	})

	t.Run("offsets point at the encapsulated sections", func(t *testing.T) {
		t.Parallel()

		for _, name := range []string{"a", "filetoscan", "dir/some file.bin", strings.Repeat("x", 300)} {
			req := BuildRespmod("h", 1, "s", "", name)
			raw := req.Bytes()

			_, payload, found := bytes.Cut(raw, []byte("\r\n\r\n"))
			if !found {
				t.Fatalf("%s: no ICAP head terminator", name)
			}

			o := req.Offsets
			if o.ReqHdr != 0 {
				t.Errorf("%s: expected req-hdr 0, got %d", name, o.ReqHdr)
			}
			if !bytes.HasPrefix(payload[o.ResHdr:], []byte("HTTP/1.1 200 OK\r\n")) {
				t.Errorf("%s: res-hdr offset %d does not point at response head", name, o.ResHdr)
			}
			if o.ResBody != len(payload) {
				t.Errorf("%s: expected res-body %d, got %d", name, len(payload), o.ResBody)
			}
		}
	})

	t.Run("appends the action to the service", func(t *testing.T) {
		t.Parallel()

		req := BuildRespmod("h", 1344, "srv", "?allow204=on", "f")
		if req.URI() != "icap://h:1344/srv?allow204=on" {
			t.Errorf("unexpected URI %q", req.URI())
		}
	})

	t.Run("empty filename uses the default", func(t *testing.T) {
		t.Parallel()

		req := BuildRespmod("h", 1344, "srv", "", "")
		if !bytes.Contains(req.Bytes(), []byte("GET /"+DefaultFilename+" HTTP/1.1")) {
			t.Errorf("expected default filename in %q", req.Bytes())
		}
	})

	t.Run("escapes control bytes in filenames", func(t *testing.T) {
		t.Parallel()

		req := BuildRespmod("h", 1344, "srv", "", "bad\r\nname\x7f")
		raw := string(req.Bytes())

		if !strings.Contains(raw, `GET /bad\x0d\x0aname\x7f HTTP/1.1`) {
			t.Errorf("expected escaped filename, got %q", raw)
		}
	})

	t.Run("filename escaping", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name string
			in   string
			want string
		}{
			{name: "ascii", in: "report 2024.pdf", want: "report 2024.pdf"},
			{name: "accented", in: "résumé.doc", want: "résumé.doc"},
			{name: "cjk", in: "文書.txt", want: "文書.txt"},
			{name: "tab", in: "a\tb", want: `a\x09b`},
			{name: "invalid utf8", in: "a\xffb", want: `a\xffb`},
			{name: "truncated rune", in: "x\xc3", want: `x\xc3`},
		}
		for _, tt := range tests {
			if got := safeString(tt.in); got != tt.want {
				t.Errorf("%s: expected %q, got %q", tt.name, tt.want, got)
			}
		}
	})

	t.Run("offsets count bytes of multi-byte filenames", func(t *testing.T) {
		t.Parallel()

		req := BuildRespmod("h", 1344, "srv", "", "résumé.doc")
		_, payload, _ := bytes.Cut(req.Bytes(), []byte("\r\n\r\n"))
		if !bytes.HasPrefix(payload[req.Offsets.ResHdr:], []byte("HTTP/1.1 200 OK\r\n")) {
			t.Errorf("res-hdr offset %d does not point at response head", req.Offsets.ResHdr)
		}
		if req.Offsets.ResBody != len(payload) {
			t.Errorf("expected res-body %d, got %d", len(payload), req.Offsets.ResBody)
		}
	})

	t.Run("brackets IPv6 hosts", func(t *testing.T) {
		t.Parallel()

		req := BuildRespmod("::1", 1344, "srv", "", "f")
		if req.URI() != "icap://[::1]:1344/srv" {
			t.Errorf("unexpected URI %q", req.URI())
		}
	})
}
