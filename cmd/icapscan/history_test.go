package main

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"github.com/nao1215/icapscan/internal/database"
	"github.com/nao1215/icapscan/internal/model"
	"github.com/nao1215/icapscan/internal/sample"
)

// seedHistory stores an infected scan of a real file and returns the
// database directory, the file path, its digest and the row ID.
func seedHistory(t *testing.T) (string, string, string, int64) {
	t.Helper()

	path := writeFile(t, t.TempDir(), "seen.bin", "history sample")
	info, err := sample.Inspect(path)
	if err != nil {
		t.Fatalf("failed to inspect sample: %v", err)
	}

	dbDir := t.TempDir()
	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close() //nolint:errcheck

	r := model.NewScanReport(path, "icap://av.example:1344/avscan")
	r.Sample = info
	r.Verdict = model.VerdictInfected
	r.AddThreat(model.Threat{Name: "Test.Threat"})

	id, err := db.SaveScanReport(t.Context(), r)
	if err != nil {
		t.Fatalf("failed to save report: %v", err)
	}
	return dbDir, path, info.SHA256, id
}

// TestRunHistoryCmd tests the history views.
func TestRunHistoryCmd(t *testing.T) {
	t.Parallel()

	dbDir, path, digest, id := seedHistory(t)

	t.Run("lists scanned samples", func(t *testing.T) {
		t.Parallel()
		stdout, _, err := runRoot(t, "history", "--db-dir", dbDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, digest) || !strings.Contains(stdout, path) {
			t.Errorf("expected digest and path in listing, got %q", stdout)
		}
	})

	t.Run("shows history by digest", func(t *testing.T) {
		t.Parallel()
		stdout, _, err := runRoot(t, "history", "--db-dir", dbDir, strings.ToUpper(digest))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "infected") || !strings.Contains(stdout, "Test.Threat") {
			t.Errorf("expected infected verdict with threat, got %q", stdout)
		}
	})

	t.Run("shows history by path", func(t *testing.T) {
		t.Parallel()
		stdout, _, err := runRoot(t, "history", "--db-dir", dbDir, path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "History for "+digest) {
			t.Errorf("expected history for %s, got %q", digest, stdout)
		}
	})

	t.Run("unknown digest has no scans", func(t *testing.T) {
		t.Parallel()
		stdout, _, err := runRoot(t, "history", "--db-dir", dbDir, strings.Repeat("0", 64))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "No scans recorded") {
			t.Errorf("expected empty history message, got %q", stdout)
		}
	})

	t.Run("prints a stored report as json", func(t *testing.T) {
		t.Parallel()
		stdout, _, err := runRoot(t, "history", "--db-dir", dbDir, "--id", strconv.FormatInt(id, 10), "-j")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var r model.ScanReport
		if err := json.Unmarshal([]byte(stdout), &r); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if r.FilePath != path || r.Verdict != model.VerdictInfected {
			t.Errorf("expected infected report for %s, got %s %s", path, r.FilePath, r.Verdict)
		}
	})

	t.Run("unknown id is an error", func(t *testing.T) {
		t.Parallel()
		if _, _, err := runRoot(t, "history", "--db-dir", dbDir, "--id", "999"); err == nil {
			t.Error("expected error for unknown id")
		}
	})

	t.Run("argument that is neither digest nor file is an error", func(t *testing.T) {
		t.Parallel()
		if _, _, err := runRoot(t, "history", "--db-dir", dbDir, "not-a-file"); err == nil {
			t.Error("expected error")
		}
	})
}

// TestRunHistoryCmdEmpty tests a fresh database.
func TestRunHistoryCmdEmpty(t *testing.T) {
	t.Parallel()

	stdout, _, err := runRoot(t, "history", "--db-dir", t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "No scans recorded.") {
		t.Errorf("expected empty message, got %q", stdout)
	}
}
