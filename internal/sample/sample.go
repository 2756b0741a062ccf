package sample

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	exif "github.com/dsoprea/go-exif/v3"
	"golang.org/x/crypto/sha3"

	"github.com/nao1215/icapscan/internal/model"
)

// sniffLen is how many leading bytes are used to detect the content type.
const sniffLen = 512

// MaxExifSize bounds how much of an image is read looking for EXIF data.
const MaxExifSize = 32 << 20

// ErrNotRegular is returned when the path is not a regular file.
var ErrNotRegular = errors.New("sample: not a regular file")

// Inspect reads the file at path once and returns its size, digests and
// sniffed content type. JPEG and TIFF files also get an EXIF summary when
// they carry EXIF data.
func Inspect(path string) (*model.SampleInfo, error) {
	f, err := os.Open(path) //nolint:gosec // path is chosen by the user
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !st.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotRegular, path)
	}

	info, err := inspectReader(f)
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", path, err)
	}

	if isExifCandidate(info.MIMEType) {
		if _, err := f.Seek(0, io.SeekStart); err == nil {
			info.EXIF = readExif(io.LimitReader(f, MaxExifSize))
		}
	}

	return info, nil
}

// inspectReader hashes r and sniffs its content type in a single pass.
func inspectReader(r io.Reader) (*model.SampleInfo, error) {
	sum256 := sha256.New()
	sum3 := sha3.New256()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	head = head[:n]

	w := io.MultiWriter(sum256, sum3)
	_, _ = w.Write(head) //nolint:errcheck // hash writes never fail

	rest, err := io.Copy(w, r)
	if err != nil {
		return nil, err
	}

	return &model.SampleInfo{
		Size:     int64(n) + rest,
		SHA256:   hex.EncodeToString(sum256.Sum(nil)),
		SHA3256:  hex.EncodeToString(sum3.Sum(nil)),
		MIMEType: http.DetectContentType(head),
	}, nil
}

func isExifCandidate(mimeType string) bool {
	switch mimeType {
	case "image/jpeg", "image/tiff", "image/webp", "image/png":
		return true
	}
	return false
}

// readExif summarizes the EXIF block in r. It returns nil when there is
// none or it cannot be parsed.
func readExif(r io.Reader) *model.ExifSummary {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil
	}

	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil || rawExif == nil {
		return nil
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return nil
	}

	summary := &model.ExifSummary{TagCount: len(entries)}
	for _, entry := range entries {
		switch entry.TagName {
		case "Make":
			summary.Make = entry.Formatted
		case "Model":
			summary.Model = entry.Formatted
		case "Software":
			summary.Software = entry.Formatted
		case "DateTimeOriginal":
			summary.DateTime = entry.Formatted
		case "DateTime":
			if summary.DateTime == "" {
				summary.DateTime = entry.Formatted
			}
		case "GPSLatitude", "GPSLongitude":
			summary.HasGPS = true
		}
	}
	return summary
}
