package model

import (
	"slices"
	"time"
)

// BatchSummary aggregates the reports of one scan run.
type BatchSummary struct {
	// Server identifies the ICAP service the batch was sent to.
	Server string `json:"server"`

	// Started and Finished bound the run.
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`

	// Per-verdict counts.
	Total     int `json:"total"`
	Clean     int `json:"clean"`
	Infected  int `json:"infected"`
	Errors    int `json:"errors"`
	Cancelled int `json:"cancelled"`
	Unknown   int `json:"unknown"`

	// Cached counts reports answered from the history database.
	Cached int `json:"cached"`

	// Reports holds every report in input order.
	Reports []*ScanReport `json:"reports"`
}

// NewBatchSummary counts verdicts over reports. Nil entries are skipped.
func NewBatchSummary(server string, started time.Time, reports []*ScanReport) *BatchSummary {
	s := &BatchSummary{
		Server:   server,
		Started:  started,
		Finished: time.Now(),
		Reports:  make([]*ScanReport, 0, len(reports)),
	}

	for _, r := range reports {
		if r == nil {
			continue
		}
		s.Reports = append(s.Reports, r)
		s.Total++
		if r.Cached {
			s.Cached++
		}

		switch r.Verdict {
		case VerdictClean:
			s.Clean++
		case VerdictInfected:
			s.Infected++
		case VerdictError:
			s.Errors++
		case VerdictCancelled:
			s.Cancelled++
		case VerdictUnknown:
			s.Unknown++
		}
	}

	return s
}

// Failed reports whether any sample was infected or could not be scanned.
func (s *BatchSummary) Failed() bool {
	return s.Infected > 0 || s.Errors > 0
}

// ThreatNames returns the distinct threat names found in the batch, sorted.
func (s *BatchSummary) ThreatNames() []string {
	var names []string
	for _, r := range s.Reports {
		for _, name := range r.ThreatNames() {
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)
	return names
}
