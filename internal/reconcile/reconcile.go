// Package reconcile computes the note's next state from download logs.
// Download outcomes are verified against the filesystem before any line is
// touched; the on-disk artifact is authoritative over the reported status.
package reconcile

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/arnvik/raido/internal/extract"
	"github.com/arnvik/raido/internal/models"
)

// Probe locates a downloaded artifact for an external id.
type Probe interface {
	// Find returns the artifact path and whether one exists for the id.
	Find(kind models.Kind, externalID string) (string, bool)
}

var urlRe = regexp.MustCompile(`https?://[^\s<>"']+`)

// Apply classifies every attempt, rewrites the note text accordingly, and
// returns the new text with a report. The note itself is not written here;
// the caller issues the single store write. Re-running against an already
// updated note finds nothing to change and reports zero changes.
func Apply(attempts []models.Attempt, noteText string, probe Probe) (string, models.Report) {
	return ApplyAt(time.Now(), attempts, noteText, probe)
}

// ApplyAt is Apply with an explicit clock for the cleanup trailer entry.
func ApplyAt(now time.Time, attempts []models.Attempt, noteText string, probe Probe) (string, models.Report) {
	var rep models.Report
	covered := make(map[string]struct{}, len(attempts))
	var verified, failed []string

	for _, a := range attempts {
		if a.URL == "" {
			continue
		}
		if _, dup := covered[a.URL]; dup {
			continue
		}
		covered[a.URL] = struct{}{}

		if a.Status == models.StatusSuccess && a.ExternalID != "" {
			if _, ok := probe.Find(a.Kind, a.ExternalID); ok {
				rep.VerifiedSuccess++
				verified = append(verified, a.URL)
				continue
			}
		}
		// Reported failures, successes without a usable id, and successes
		// whose artifact cannot be located all land here.
		rep.VerifiedFailure++
		failed = append(failed, a.URL)
	}

	for _, u := range collectURLs(noteText) {
		if _, ok := covered[u]; !ok {
			rep.Untouched++
		}
	}

	doc := splitDoc(noteText)
	for _, u := range verified {
		rep.LinesRemoved += doc.removeEverywhere(u)
	}
	for _, u := range failed {
		n := doc.removeOutsideFailed(u)
		if doc.failedContains(u) {
			// Already parked; dropping a stray body copy is still a change.
			rep.LinesRemoved += n
			continue
		}
		doc.failed = append(doc.failed, u)
		rep.LinesMoved++
	}

	if rep.Changed() {
		doc.cleanup = append(doc.cleanup, fmt.Sprintf(
			"Cleanup: %s (Removed %d successful, Moved %d failed)",
			now.Format("20060102_1504"), rep.LinesRemoved, rep.LinesMoved))
	}

	return doc.render(), rep
}

// document is the note split at its trailer markers. Body order is preserved
// exactly; trailer sections are re-rendered canonically at the end.
type document struct {
	body    []string
	failed  []string
	cleanup []string
}

func splitDoc(text string) *document {
	d := &document{}
	section := &d.body
	// An exported HTML body may arrive as a single <div>-chain line; break
	// it at block boundaries so markers land on lines of their own, the
	// same way extraction sees them.
	for _, line := range strings.Split(extract.BreakBlocks(text), "\n") {
		switch {
		case strings.Contains(line, extract.MarkerFailed):
			section = &d.failed
		case strings.Contains(line, extract.MarkerCleanup):
			section = &d.cleanup
		default:
			*section = append(*section, line)
		}
	}
	return d
}

// removeEverywhere deletes the URL from every section and returns the number
// of lines dropped.
func (d *document) removeEverywhere(url string) int {
	n := 0
	for _, section := range []*[]string{&d.body, &d.failed, &d.cleanup} {
		var kept []string
		for _, line := range *section {
			rest, hit := removeURLFromLine(line, url)
			if !hit {
				kept = append(kept, line)
				continue
			}
			if rest != "" {
				kept = append(kept, rest)
				continue
			}
			n++
		}
		*section = kept
	}
	return n
}

// removeOutsideFailed deletes the URL from the body only, leaving an existing
// parked copy in place.
func (d *document) removeOutsideFailed(url string) int {
	n := 0
	var kept []string
	for _, line := range d.body {
		rest, hit := removeURLFromLine(line, url)
		if !hit {
			kept = append(kept, line)
			continue
		}
		if rest != "" {
			kept = append(kept, rest)
			continue
		}
		n++
	}
	d.body = kept
	return n
}

func (d *document) failedContains(url string) bool {
	for _, line := range d.failed {
		if lineHasURL(line, url) {
			return true
		}
	}
	return false
}

func (d *document) render() string {
	var b strings.Builder

	// Trim trailing blank lines left behind by removed entries.
	body := d.body
	for len(body) > 0 && strings.TrimSpace(body[len(body)-1]) == "" {
		body = body[:len(body)-1]
	}
	for _, line := range body {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	if lines := nonBlank(d.failed); len(lines) > 0 {
		b.WriteByte('\n')
		b.WriteString(extract.MarkerFailed)
		b.WriteByte('\n')
		for _, line := range lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	if lines := nonBlank(d.cleanup); len(lines) > 0 {
		b.WriteByte('\n')
		b.WriteString(extract.MarkerCleanup)
		b.WriteByte('\n')
		for _, line := range lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func nonBlank(lines []string) []string {
	var out []string
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

// lineHasURL reports whether the line carries exactly this normalized URL,
// not merely a longer URL sharing its prefix.
func lineHasURL(line, url string) bool {
	for _, m := range urlRe.FindAllString(line, -1) {
		if strings.TrimRight(m, ".,;!?)") == url {
			return true
		}
	}
	return false
}

// removeURLFromLine strips the URL out of the line. The second return is true
// when the line carried the URL; the first is what survives of the line, or
// empty when nothing meaningful is left.
func removeURLFromLine(line, url string) (string, bool) {
	hit := false
	rest := line
	for _, m := range urlRe.FindAllString(line, -1) {
		if strings.TrimRight(m, ".,;!?)") == url {
			rest = strings.Replace(rest, m, "", 1)
			hit = true
		}
	}
	if !hit {
		return line, false
	}
	if strings.TrimSpace(extract.StripHTML(rest)) == "" {
		return "", true
	}
	return rest, true
}

func collectURLs(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, line := range strings.Split(extract.StripHTML(text), "\n") {
		for _, m := range urlRe.FindAllString(line, -1) {
			u := strings.TrimRight(m, ".,;!?)")
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}
