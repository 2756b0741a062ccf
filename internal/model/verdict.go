package model

import (
	"fmt"
	"strings"
)

// Verdict is the outcome of scanning one sample.
//
// Design decision: Verdicts are serialized as lowercase strings (via
// MarshalText) so JSON reports and the history database stay readable and
// stable even if constants are reordered.
type Verdict int

const (
	// VerdictUnknown means no verdict has been reached yet.
	VerdictUnknown Verdict = iota

	// VerdictClean means the scanner found nothing.
	VerdictClean

	// VerdictInfected means the scanner reported at least one threat.
	VerdictInfected

	// VerdictError means the sample could not be scanned.
	VerdictError

	// VerdictCancelled means the scan was abandoned before a response arrived.
	VerdictCancelled
)

// String returns the lowercase name of the verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictClean:
		return "clean"
	case VerdictInfected:
		return "infected"
	case VerdictError:
		return "error"
	case VerdictCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseVerdict converts a verdict name back into a Verdict.
// Matching ignores case; unrecognized names are an error.
func ParseVerdict(s string) (Verdict, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "clean":
		return VerdictClean, nil
	case "infected":
		return VerdictInfected, nil
	case "error":
		return VerdictError, nil
	case "cancelled":
		return VerdictCancelled, nil
	case "unknown", "":
		return VerdictUnknown, nil
	default:
		return VerdictUnknown, fmt.Errorf("unknown verdict %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Verdict) UnmarshalText(text []byte) error {
	parsed, err := ParseVerdict(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// IsFailure reports whether the verdict should make a batch fail:
// an infected sample or one that could not be scanned.
func (v Verdict) IsFailure() bool {
	return v == VerdictInfected || v == VerdictError
}
