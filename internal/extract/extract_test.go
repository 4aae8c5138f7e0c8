package extract

import (
	"strings"
	"testing"

	"github.com/arnvik/raido/internal/models"
)

func urls(entries []models.URLEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.URL
	}
	return out
}

func TestExtract_DefaultKindIsVideo(t *testing.T) {
	c := Extract("https://a.com/1\n")
	if len(c.Video) != 1 || len(c.Audio) != 0 {
		t.Fatalf("video=%d audio=%d, want 1/0", len(c.Video), len(c.Audio))
	}
	if c.Video[0].Kind != models.KindVideo {
		t.Errorf("kind = %q, want video", c.Video[0].Kind)
	}
}

func TestExtract_MarkerSwitchesKind(t *testing.T) {
	note := strings.Join([]string{
		"https://a.com/1",
		"___mp3___",
		"https://a.com/2",
		"https://a.com/3",
		"___mp4___",
		"https://a.com/4",
	}, "\n")
	c := Extract(note)

	if got, want := urls(c.Video), []string{"https://a.com/1", "https://a.com/4"}; !equal(got, want) {
		t.Errorf("video = %v, want %v", got, want)
	}
	if got, want := urls(c.Audio), []string{"https://a.com/2", "https://a.com/3"}; !equal(got, want) {
		t.Errorf("audio = %v, want %v", got, want)
	}
}

func TestExtract_OrderPreservedWithinKind(t *testing.T) {
	note := "___mp3___\nhttps://a.com/z\nhttps://a.com/a\nhttps://a.com/m\n"
	c := Extract(note)
	want := []string{"https://a.com/z", "https://a.com/a", "https://a.com/m"}
	if got := urls(c.Audio); !equal(got, want) {
		t.Errorf("audio = %v, want %v", got, want)
	}
}

func TestExtract_NonURLLinesDroppedSilently(t *testing.T) {
	note := "shopping list\nhttps://a.com/1\nremember the milk\n"
	c := Extract(note)
	if c.Total() != 1 {
		t.Fatalf("total = %d, want 1", c.Total())
	}
}

func TestExtract_FirstOccurrenceWinsAcrossKinds(t *testing.T) {
	note := "___mp3___\nhttps://a.com/dup\n___mp4___\nhttps://a.com/dup\n"
	c := Extract(note)
	if len(c.Audio) != 1 || len(c.Video) != 0 {
		t.Errorf("audio=%d video=%d, want 1/0", len(c.Audio), len(c.Video))
	}
}

func TestExtract_FailedTrailerIsParked(t *testing.T) {
	note := strings.Join([]string{
		"https://a.com/1",
		"---FAILED URLS---",
		"https://a.com/broken",
		"---CLEANUP LOG---",
		"Cleanup: 20250301_1405 (Removed 1 successful, Moved 1 failed)",
	}, "\n")
	c := Extract(note)
	if c.Total() != 1 {
		t.Fatalf("total = %d, want 1 (trailer URLs must not be candidates)", c.Total())
	}
	if c.Video[0].URL != "https://a.com/1" {
		t.Errorf("url = %q", c.Video[0].URL)
	}
}

func TestExtract_HTMLNote(t *testing.T) {
	note := `<div>https://a.com/1</div><div><br></div><div>___mp3___</div><div><a href="https://a.com/2">https://a.com/2</a></div>`
	c := Extract(note)
	if got := urls(c.Video); !equal(got, []string{"https://a.com/1"}) {
		t.Errorf("video = %v", got)
	}
	if got := urls(c.Audio); !equal(got, []string{"https://a.com/2"}) {
		t.Errorf("audio = %v", got)
	}
}

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://a.com/x", "https://a.com/x", true},
		{"see https://a.com/x, thanks", "https://a.com/x", true},
		{"https://a.com/x).", "https://a.com/x", true},
		{"http://b.org/watch?v=abc", "http://b.org/watch?v=abc", true},
		{"not a url", "", false},
		{"ftp://a.com/x", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeURL(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("NormalizeURL(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestStripHTML_PlainTextPassthrough(t *testing.T) {
	in := "https://a.com/1\nplain line\n"
	if got := StripHTML(in); got != in {
		t.Errorf("StripHTML changed plain text: %q", got)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
