package sample

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeSample(t *testing.T, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write sample: %v", err)
	}
	return path
}

// TestInspect tests digests and content sniffing.
func TestInspect(t *testing.T) {
	t.Parallel()

	t.Run("text file", func(t *testing.T) {
		t.Parallel()

		info, err := Inspect(writeSample(t, "hello.txt", []byte("hello icap\n")))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if info.Size != 11 {
			t.Errorf("expected size 11, got %d", info.Size)
		}
		if info.SHA256 != "11f0e51bb6e7e671d00a0516b1cbf156cabf704d287be07aea2ef69cd07a0408" {
			t.Errorf("unexpected SHA-256 %s", info.SHA256)
		}
		if info.SHA3256 != "d31c63aa254ffaa6023c928f42822d95ec867c1b0202e744f60513efe68f556f" {
			t.Errorf("unexpected SHA3-256 %s", info.SHA3256)
		}
		if info.MIMEType != "text/plain; charset=utf-8" {
			t.Errorf("unexpected MIME type %q", info.MIMEType)
		}
		if info.EXIF != nil {
			t.Error("text files must not get an EXIF summary")
		}
	})

	t.Run("binary file larger than the sniff buffer", func(t *testing.T) {
		t.Parallel()

		data := make([]byte, 5000)
		for i := range data {
			data[i] = byte(i * 7 % 251)
		}

		info, err := Inspect(writeSample(t, "blob.bin", data))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if info.Size != 5000 {
			t.Errorf("expected size 5000, got %d", info.Size)
		}
		if info.SHA256 != "08026c57be31084b60ded63e3101c86365be4d84b87b43bad97b3feb8152e20f" {
			t.Errorf("unexpected SHA-256 %s", info.SHA256)
		}
		if info.MIMEType != "application/octet-stream" {
			t.Errorf("unexpected MIME type %q", info.MIMEType)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		t.Parallel()

		info, err := Inspect(writeSample(t, "empty", nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if info.Size != 0 {
			t.Errorf("expected size 0, got %d", info.Size)
		}
		if info.SHA3256 != "a7ffc6f8bf1ed76651c14756a061d662f580ff4de43b49fa82d80a4b80f8434a" {
			t.Errorf("unexpected SHA3-256 %s", info.SHA3256)
		}
	})

	t.Run("jpeg without EXIF", func(t *testing.T) {
		t.Parallel()

		jpeg := append([]byte{0xFF, 0xD8, 0xFF, 0xDB}, make([]byte, 64)...)
		info, err := Inspect(writeSample(t, "plain.jpg", jpeg))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if info.MIMEType != "image/jpeg" {
			t.Errorf("unexpected MIME type %q", info.MIMEType)
		}
		if info.EXIF != nil {
			t.Errorf("expected no EXIF summary, got %+v", info.EXIF)
		}
	})

	t.Run("directory is rejected", func(t *testing.T) {
		t.Parallel()

		_, err := Inspect(t.TempDir())
		if !errors.Is(err, ErrNotRegular) {
			t.Errorf("expected ErrNotRegular, got %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := Inspect(filepath.Join(t.TempDir(), "missing"))
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected os.ErrNotExist, got %v", err)
		}
	})
}
