package icap

import (
	"bytes"
	"errors"
	"maps"
	"testing"
)

func joinLines(lines ...string) []byte {
	parts := make([][]byte, len(lines))
	for i, l := range lines {
		parts[i] = []byte(l)
	}
	return bytes.Join(parts, []byte("\r\n"))
}

// TestParseHeaders tests parsing of well-formed and vendor-specific header blocks.
func TestParseHeaders(t *testing.T) {
	t.Parallel()

	t.Run("status line without headers ignores header-like body", func(t *testing.T) {
		t.Parallel()

		body := joinLines("ICAP/1.0 100 Continue", "", "Not-Header: Value")
		block, err := ParseHeaders(body)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !block.HasStatus || block.StatusCode != 100 {
			t.Errorf("expected status 100, got %d (has=%v)", block.StatusCode, block.HasStatus)
		}
		if string(block.StatusMessage) != "Continue" {
			t.Errorf("expected message 'Continue', got %q", block.StatusMessage)
		}
		if len(block.Headers) != 0 {
			t.Errorf("expected no headers, got %v", block.Headers)
		}
	})

	t.Run("value may contain separators", func(t *testing.T) {
		t.Parallel()

		body := joinLines("ICAP/1.0 130 Not sure really", "X-A-Header: A message:\tMore-Message", "", "Not-Header: Value")
		block, err := ParseHeaders(body)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if block.StatusCode != 130 || string(block.StatusMessage) != "Not sure really" {
			t.Errorf("unexpected status %d %q", block.StatusCode, block.StatusMessage)
		}
		want := map[string]string{"X-A-HEADER": "A message:\tMore-Message"}
		if !maps.Equal(block.Headers, want) {
			t.Errorf("expected %v, got %v", want, block.Headers)
		}
	})

	t.Run("names are case insensitive and values left trimmed", func(t *testing.T) {
		t.Parallel()

		body := joinLines("ICAP/1.0 200 Ok", "DaTe:     whenever really", "X-A-Header: A message\t(@More-Message)", "", "Not-Header: Value")
		block, err := ParseHeaders(body)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := map[string]string{
			"X-A-HEADER": "A message\t(@More-Message)",
			"DATE":       "whenever really",
		}
		if !maps.Equal(block.Headers, want) {
			t.Errorf("expected %v, got %v", want, block.Headers)
		}
		if block.Get("date") != "whenever really" {
			t.Errorf("Get should ignore case, got %q", block.Get("date"))
		}
	})

	t.Run("folds continuation lines with single spaces", func(t *testing.T) {
		t.Parallel()

		body := joinLines(
			"ICAP/1.0 200 Ok",
			"DaTe:     whenever really",
			"X-A-Header:",
			" - A",
			" : B",
			" > C",
			"\t= 123",
			"X-B-Header: ()<>@,;:\\\"/[]?={} \t",
			"",
			"Not-Header: Value",
		)
		block, err := ParseHeaders(body)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := map[string]string{
			"X-A-HEADER": " - A : B > C = 123",
			"X-B-HEADER": "()<>@,;:\\\"/[]?={} \t",
			"DATE":       "whenever really",
		}
		if !maps.Equal(block.Headers, want) {
			t.Errorf("expected %v, got %v", want, block.Headers)
		}
	})

	t.Run("folded value equals single line joined by spaces", func(t *testing.T) {
		t.Parallel()

		folded, err := ParseHeaders(joinLines("ICAP/1.0 200 OK", "X-List: one", "   two", "\t\tthree", ""))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		single, err := ParseHeaders(joinLines("ICAP/1.0 200 OK", "X-List: one two three", ""))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if folded.Get("X-List") != single.Get("X-List") {
			t.Errorf("folded %q != single %q", folded.Get("X-List"), single.Get("X-List"))
		}
	})

	t.Run("last duplicate wins across case variants", func(t *testing.T) {
		t.Parallel()

		block, err := ParseHeaders(joinLines("ICAP/1.0 200 OK", "istag: first", "ISTag: second", "IsTag: third", ""))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(block.Headers) != 1 || block.Get("ISTAG") != "third" {
			t.Errorf("expected single ISTAG=third, got %v", block.Headers)
		}
	})

	t.Run("strips exactly one pair of matching quotes", func(t *testing.T) {
		t.Parallel()

		block, err := ParseHeaders(joinLines(
			"ICAP/1.0 200 OK",
			`X-Double: "EICAR "test" file"`,
			`X-Single: 'quoted'`,
			`X-Nested: ""inner""`,
			`X-Mismatch: "left'`,
			`X-Lone: "`,
			"",
		))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := map[string]string{
			"X-DOUBLE":   `EICAR "test" file`,
			"X-SINGLE":   "quoted",
			"X-NESTED":   `"inner"`,
			"X-MISMATCH": `"left'`,
			"X-LONE":     `"`,
		}
		if !maps.Equal(block.Headers, want) {
			t.Errorf("expected %v, got %v", want, block.Headers)
		}
	})

	t.Run("headers with empty values are dropped", func(t *testing.T) {
		t.Parallel()

		block, err := ParseHeaders(joinLines("ICAP/1.0 200 OK", "X-Empty:", "X-Set: yes", ""))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, ok := block.Lookup("X-Empty"); ok {
			t.Error("expected empty header to be dropped")
		}
		if block.Get("X-Set") != "yes" {
			t.Errorf("expected X-SET=yes, got %v", block.Headers)
		}
	})

	t.Run("accepts bare LF line endings", func(t *testing.T) {
		t.Parallel()

		block, err := ParseHeaders([]byte("ICAP/1.0 204 No Content\nISTag: abc\n\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if block.StatusCode != 204 || block.Get("ISTag") != "abc" {
			t.Errorf("unexpected result %d %v", block.StatusCode, block.Headers)
		}
	})

	t.Run("status line without message", func(t *testing.T) {
		t.Parallel()

		block, err := ParseHeaders([]byte("ICAP/1.0 204\r\n\r\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if block.StatusCode != 204 || len(block.StatusMessage) != 0 {
			t.Errorf("unexpected status %d %q", block.StatusCode, block.StatusMessage)
		}
	})

	t.Run("parsing is idempotent", func(t *testing.T) {
		t.Parallel()

		body := joinLines("ICAP/1.0 200 OK", "ISTag: \"x\"", "Encapsulated: null-body=0", "")
		first, err := ParseHeaders(body)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := ParseHeaders(body)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !maps.Equal(first.Headers, second.Headers) || first.StatusCode != second.StatusCode {
			t.Error("expected identical results for identical input")
		}
	})
}

// TestParseHeadersStatusLine tests status line validation.
func TestParseHeadersStatusLine(t *testing.T) {
	t.Parallel()

	t.Run("empty body requires a status line", func(t *testing.T) {
		t.Parallel()

		_, err := ParseHeaders(nil)
		if !errors.Is(err, ErrMissingStatusLine) {
			t.Errorf("expected ErrMissingStatusLine, got %v", err)
		}
	})

	t.Run("blank first line is a missing status line", func(t *testing.T) {
		t.Parallel()

		_, err := ParseHeaders([]byte("\r\nISTag: x\r\n\r\n"))
		if !errors.Is(err, ErrMissingStatusLine) {
			t.Errorf("expected ErrMissingStatusLine, got %v", err)
		}
	})

	t.Run("wrong protocol token is rejected", func(t *testing.T) {
		t.Parallel()

		_, err := ParseHeaders([]byte("HTTP/1.1 200 OK\r\n\r\n"))
		if !errors.Is(err, ErrProtocolMismatch) {
			t.Errorf("expected ErrProtocolMismatch, got %v", err)
		}
	})

	t.Run("non numeric status code is rejected", func(t *testing.T) {
		t.Parallel()

		_, err := ParseHeaders([]byte("ICAP/1.0 OK fine\r\n\r\n"))
		if !errors.Is(err, ErrMalformedStatusLine) {
			t.Errorf("expected ErrMalformedStatusLine, got %v", err)
		}
	})
}

// TestParseHeadersWithoutStatusLine tests the headers-only mode.
func TestParseHeadersWithoutStatusLine(t *testing.T) {
	t.Parallel()

	t.Run("empty body yields absent status and no headers", func(t *testing.T) {
		t.Parallel()

		block, err := ParseHeaders(nil, WithoutStatusLine())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if block.HasStatus || block.StatusMessage != nil {
			t.Error("expected status to be absent")
		}
		if len(block.Headers) != 0 {
			t.Errorf("expected no headers, got %v", block.Headers)
		}
	})

	t.Run("first line is parsed as a header", func(t *testing.T) {
		t.Parallel()

		block, err := ParseHeaders(joinLines("X-Virus-Name: Eicar-Test-Signature", "X-Other: 1", ""), WithoutStatusLine())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if block.HasStatus {
			t.Error("expected status to be absent")
		}
		want := map[string]string{"X-VIRUS-NAME": "Eicar-Test-Signature", "X-OTHER": "1"}
		if !maps.Equal(block.Headers, want) {
			t.Errorf("expected %v, got %v", want, block.Headers)
		}
	})

	t.Run("status line is still honoured when present", func(t *testing.T) {
		t.Parallel()

		block, err := ParseHeaders(joinLines("  ICAP/1.0 204 No Content", "ISTag: x", ""), WithoutStatusLine())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !block.HasStatus || block.StatusCode != 204 {
			t.Errorf("expected status 204, got %d (has=%v)", block.StatusCode, block.HasStatus)
		}
	})
}

// TestParseHeadersWithBodyHeaders tests reading a header block hidden in the body.
func TestParseHeadersWithBodyHeaders(t *testing.T) {
	t.Parallel()

	body := joinLines(
		"ICAP/1.0 200 OK",
		"ISTag: \"scanner-1\"",
		"Encapsulated: res-hdr=0, res-body=45",
		"",
		"HTTP/1.1 403 Forbidden",
		"Content-Type: text/plain",
		"",
		"X-Virus-Name: Win.Test.EICAR_HDB-1",
		"",
		"",
		"After-Stop: ignored",
	)

	t.Run("default mode stops at the first blank line", func(t *testing.T) {
		t.Parallel()

		block, err := ParseHeaders(body)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := block.Lookup("X-Virus-Name"); ok {
			t.Error("did not expect body headers without WithBodyHeaders")
		}
		if block.Get("ISTag") != "scanner-1" {
			t.Errorf("expected quoted ISTag to be stripped, got %q", block.Get("ISTag"))
		}
	})

	t.Run("body mode accumulates every block into one map", func(t *testing.T) {
		t.Parallel()

		block, err := ParseHeaders(body, WithBodyHeaders())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if block.Get("X-Virus-Name") != "Win.Test.EICAR_HDB-1" {
			t.Errorf("expected body header, got %v", block.Headers)
		}
		if block.Get("Content-Type") != "text/plain" {
			t.Errorf("expected encapsulated HTTP header, got %v", block.Headers)
		}
		if _, ok := block.Lookup("HTTP/1.1 403 FORBIDDEN"); ok {
			t.Error("HTTP status line must not become a header")
		}
		if _, ok := block.Lookup("After-Stop"); ok {
			t.Error("two blank lines should end parsing")
		}
	})
}
