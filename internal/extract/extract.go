// Package extract parses note text into download candidates, partitioned by
// the marker sections the URLs appear under.
package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/arnvik/raido/internal/models"
)

// Section markers recognized inside the note.
const (
	MarkerAudio   = "___mp3___"
	MarkerVideo   = "___mp4___"
	MarkerFailed  = "---FAILED URLS---"
	MarkerCleanup = "---CLEANUP LOG---"
)

var urlRe = regexp.MustCompile(`https?://[^\s<>"']+`)

// Candidates holds extracted entries per kind, in source order.
type Candidates struct {
	Audio []models.URLEntry
	Video []models.URLEntry
}

// Total returns the number of extracted entries across both kinds.
func (c Candidates) Total() int {
	return len(c.Audio) + len(c.Video)
}

// Extract scans note text top to bottom and collects one URLEntry per URL
// line. A marker line switches the current kind for everything below it;
// lines before the first marker are video. Lines under the failed or cleanup
// trailers are parked and never re-extracted. A URL seen under two kinds is
// kept at its first occurrence only. Pure function over text.
func Extract(noteText string) Candidates {
	var c Candidates
	kind := models.KindVideo
	parked := false
	seen := make(map[string]struct{})

	for _, line := range strings.Split(StripHTML(noteText), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			continue
		case strings.Contains(trimmed, MarkerAudio):
			kind = models.KindAudio
			parked = false
			continue
		case strings.Contains(trimmed, MarkerVideo):
			kind = models.KindVideo
			parked = false
			continue
		case strings.Contains(trimmed, MarkerFailed), strings.Contains(trimmed, MarkerCleanup):
			parked = true
			continue
		}
		if parked {
			continue
		}

		u, ok := NormalizeURL(trimmed)
		if !ok {
			// Non-URL content is not an error; the note carries free text too.
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}

		entry := models.URLEntry{Raw: trimmed, URL: u, Kind: kind}
		if kind == models.KindAudio {
			c.Audio = append(c.Audio, entry)
		} else {
			c.Video = append(c.Video, entry)
		}
	}
	return c
}

// NormalizeURL reduces a line to a bare, syntactically valid URL.
// Trailing punctuation picked up from prose is stripped.
func NormalizeURL(line string) (string, bool) {
	m := urlRe.FindString(line)
	if m == "" {
		return "", false
	}
	m = strings.TrimRight(m, ".,;!?)")
	parsed, err := url.Parse(m)
	if err != nil || parsed.Host == "" {
		return "", false
	}
	return m, true
}

// Block boundaries become newlines so per-line scanning survives the
// <div>-per-line markup Notes exports.
var blockBreaker = strings.NewReplacer(
	"<br>", "\n", "<br/>", "\n", "<br />", "\n",
	"</div>", "</div>\n", "</p>", "</p>\n", "</li>", "</li>\n",
	"</h1>", "</h1>\n", "</h2>", "</h2>\n", "</h3>", "</h3>\n",
)

// BreakBlocks inserts a newline after every block-level element so that
// splitting on newlines yields one logical line per block. Non-HTML input
// passes through unchanged.
func BreakBlocks(s string) string {
	if !strings.Contains(s, "<") || !strings.Contains(s, ">") {
		return s
	}
	return blockBreaker.Replace(s)
}

// StripHTML converts exported note HTML to plain text, one line per block
// element. Non-HTML input passes through unchanged.
func StripHTML(s string) string {
	if !strings.Contains(s, "<") || !strings.Contains(s, ">") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(BreakBlocks(s)))
	if err != nil {
		return s
	}
	return doc.Text()
}
