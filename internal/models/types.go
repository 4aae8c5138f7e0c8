// Package models defines the domain types for Raido.
package models

import "time"

// Kind distinguishes audio (mp3) from video (mp4) downloads.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// String returns the kind name.
func (k Kind) String() string {
	return string(k)
}

// Ext returns the file extension produced for this kind.
func (k Kind) Ext() string {
	if k == KindAudio {
		return "mp3"
	}
	return "mp4"
}

// URLEntry is a single line item recovered from the note.
type URLEntry struct {
	Raw  string `json:"raw"`  // original line text, may carry HTML remnants
	URL  string `json:"url"`  // normalized bare URL
	Kind Kind   `json:"kind"` // section the line appeared under
}

// Batch is an immutable, timestamped set of newly discovered URLs of one kind.
type Batch struct {
	Name      string     `json:"name"` // file base name, e.g. 20250301_1405_3_mp3_urls.txt
	Path      string     `json:"path"` // path relative to the workarea root
	Kind      Kind       `json:"kind"`
	CreatedAt time.Time  `json:"created_at"`
	Entries   []URLEntry `json:"entries"`
}

// AttemptStatus is the final per-URL outcome reported by the downloader.
type AttemptStatus string

const (
	StatusSuccess AttemptStatus = "success"
	StatusFailed  AttemptStatus = "failed"
)

// Attempt records the outcome of trying to fetch one URL.
type Attempt struct {
	URL        string        `json:"url"`
	Kind       Kind          `json:"kind"`
	Status     AttemptStatus `json:"status"`
	Title      string        `json:"title"`
	Duration   string        `json:"duration"`    // media length, e.g. "3:12"
	Elapsed    string        `json:"elapsed"`     // wall time spent downloading, e.g. "45s"
	ExternalID string        `json:"external_id"` // downloader-assigned id, keys the artifact probe
	Timestamp  time.Time     `json:"timestamp"`
	Error      string        `json:"error,omitempty"`
}

// Report summarizes one reconciliation pass.
type Report struct {
	VerifiedSuccess int `json:"verified_success"` // attempts confirmed on disk
	VerifiedFailure int `json:"verified_failure"` // failed attempts plus unverifiable successes
	Untouched       int `json:"untouched"`        // note URLs not covered by any log this pass
	LinesRemoved    int `json:"lines_removed"`    // note lines actually deleted
	LinesMoved      int `json:"lines_moved"`      // note lines relocated to the failed section
}

// Changed reports whether the pass altered the note text.
func (r Report) Changed() bool {
	return r.LinesRemoved > 0 || r.LinesMoved > 0
}
