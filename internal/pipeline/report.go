package pipeline

import (
	"time"

	"github.com/elonfeng/degendigest/pkg/source"
)

// SourceReport counts what one source's migration did.
type SourceReport struct {
	Source      source.SourceType `json:"source"`
	Mode        Mode              `json:"mode"`
	Files       int               `json:"files"`
	FilesFailed int               `json:"files_failed"`
	Records     int               `json:"records"`
	Written     int               `json:"written"`
	Skipped     int               `json:"skipped"`
	Failed      int               `json:"failed"`
	Duplicates  int               `json:"duplicates"`
	Duration    time.Duration     `json:"duration_ns"`
	Error       string            `json:"error,omitempty"`
}

// Report is the outcome of one Run.
type Report struct {
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished"`
	Sources  []SourceReport `json:"sources"`
}

// Totals sums the per-source counters.
func (r Report) Totals() SourceReport {
	var t SourceReport
	for _, s := range r.Sources {
		t.Files += s.Files
		t.FilesFailed += s.FilesFailed
		t.Records += s.Records
		t.Written += s.Written
		t.Skipped += s.Skipped
		t.Failed += s.Failed
		t.Duplicates += s.Duplicates
		t.Duration += s.Duration
	}
	return t
}

// fileReport counts one blob's records.
type fileReport struct {
	records    int
	written    int
	skipped    int
	failed     int
	duplicates int
}

func (s *SourceReport) add(fr fileReport) {
	s.Records += fr.records
	s.Written += fr.written
	s.Skipped += fr.skipped
	s.Failed += fr.failed
	s.Duplicates += fr.duplicates
}
