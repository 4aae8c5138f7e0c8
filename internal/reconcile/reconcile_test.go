package reconcile

import (
	"strings"
	"testing"
	"time"

	"github.com/arnvik/raido/internal/models"
)

// fakeProbe verifies exactly the ids it was given.
type fakeProbe struct {
	found map[string]string
}

func (p *fakeProbe) Find(_ models.Kind, id string) (string, bool) {
	path, ok := p.found[id]
	return path, ok
}

func probeWith(ids ...string) *fakeProbe {
	p := &fakeProbe{found: make(map[string]string)}
	for _, id := range ids {
		p.found[id] = "/downloads/" + id + ".mp4"
	}
	return p
}

func success(url, id string) models.Attempt {
	return models.Attempt{URL: url, Kind: models.KindVideo, Status: models.StatusSuccess, ExternalID: id}
}

func failure(url string) models.Attempt {
	return models.Attempt{URL: url, Kind: models.KindVideo, Status: models.StatusFailed, Error: "boom"}
}

var testClock = time.Date(2025, 3, 1, 14, 5, 0, 0, time.UTC)

func TestApply_VerifiedSuccessRemovesLine(t *testing.T) {
	note := "https://a.com/1\nhttps://a.com/2\n"
	got, rep := ApplyAt(testClock, []models.Attempt{success("https://a.com/1", "id1")}, note, probeWith("id1"))

	if strings.Contains(got, "https://a.com/1") {
		t.Errorf("verified URL still present:\n%s", got)
	}
	if !strings.Contains(got, "https://a.com/2") {
		t.Errorf("uncovered URL was dropped:\n%s", got)
	}
	if rep.VerifiedSuccess != 1 || rep.LinesRemoved != 1 || rep.Untouched != 1 {
		t.Errorf("report = %+v", rep)
	}
}

func TestApply_FailureMovesToTrailer(t *testing.T) {
	note := "https://a.com/1\nhttps://a.com/2\n"
	got, rep := ApplyAt(testClock, []models.Attempt{failure("https://a.com/2")}, note, probeWith())

	if rep.VerifiedFailure != 1 || rep.LinesMoved != 1 {
		t.Errorf("report = %+v", rep)
	}
	idx := strings.Index(got, "---FAILED URLS---")
	if idx < 0 {
		t.Fatalf("failed trailer missing:\n%s", got)
	}
	if !strings.Contains(got[idx:], "https://a.com/2") {
		t.Errorf("failed URL not under trailer:\n%s", got)
	}
	if strings.Contains(got[:idx], "https://a.com/2") {
		t.Errorf("failed URL still in body:\n%s", got)
	}
}

func TestApply_SuccessWithoutArtifactIsFailure(t *testing.T) {
	note := "https://a.com/1\n"
	got, rep := ApplyAt(testClock, []models.Attempt{success("https://a.com/1", "ghost")}, note, probeWith())

	if rep.VerifiedSuccess != 0 || rep.VerifiedFailure != 1 {
		t.Errorf("report = %+v", rep)
	}
	idx := strings.Index(got, "---FAILED URLS---")
	if idx < 0 || !strings.Contains(got[idx:], "https://a.com/1") {
		t.Errorf("unverifiable success not relocated:\n%s", got)
	}
}

func TestApply_SuccessWithoutIDIsFailure(t *testing.T) {
	a := success("https://a.com/1", "")
	_, rep := ApplyAt(testClock, []models.Attempt{a}, "https://a.com/1\n", probeWith())
	if rep.VerifiedFailure != 1 {
		t.Errorf("report = %+v", rep)
	}
}

func TestApply_NoDuplicateInTrailer(t *testing.T) {
	note := "https://a.com/1\n\n---FAILED URLS---\nhttps://a.com/1\n"
	got, _ := ApplyAt(testClock, []models.Attempt{failure("https://a.com/1")}, note, probeWith())

	if n := strings.Count(got, "https://a.com/1"); n != 1 {
		t.Errorf("URL appears %d times, want 1:\n%s", n, got)
	}
}

func TestApply_RerunReportsZeroChanges(t *testing.T) {
	note := "https://a.com/1\nhttps://a.com/2\n"
	attempts := []models.Attempt{
		success("https://a.com/1", "id1"),
		failure("https://a.com/2"),
	}
	probe := probeWith("id1")

	first, rep1 := ApplyAt(testClock, attempts, note, probe)
	if !rep1.Changed() {
		t.Fatal("first pass should change the note")
	}
	second, rep2 := ApplyAt(testClock, attempts, first, probe)
	if rep2.Changed() {
		t.Errorf("second pass changed the note: %+v", rep2)
	}
	if second != first {
		t.Errorf("second pass rewrote text:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}

func TestApply_UncoveredURLsUntouched(t *testing.T) {
	note := "keep me https://a.com/other\nhttps://a.com/1\n"
	got, rep := ApplyAt(testClock, []models.Attempt{success("https://a.com/1", "id1")}, note, probeWith("id1"))

	if !strings.Contains(got, "keep me https://a.com/other") {
		t.Errorf("uncovered line altered:\n%s", got)
	}
	if rep.Untouched != 1 {
		t.Errorf("Untouched = %d, want 1", rep.Untouched)
	}
}

func TestApply_PrefixURLNotConfused(t *testing.T) {
	note := "https://a.com/1\nhttps://a.com/12\n"
	got, _ := ApplyAt(testClock, []models.Attempt{success("https://a.com/1", "id1")}, note, probeWith("id1"))

	if !strings.Contains(got, "https://a.com/12") {
		t.Errorf("longer URL sharing a prefix was removed:\n%s", got)
	}
}

func TestApply_HTMLLineRemoved(t *testing.T) {
	note := "<div>https://a.com/1</div>\n<div>https://a.com/2</div>\n"
	got, _ := ApplyAt(testClock, []models.Attempt{success("https://a.com/1", "id1")}, note, probeWith("id1"))

	if strings.Contains(got, "https://a.com/1") {
		t.Errorf("URL survived in HTML line:\n%s", got)
	}
	if strings.Contains(got, "<div></div>") {
		t.Errorf("empty wrapper left behind:\n%s", got)
	}
	if !strings.Contains(got, "https://a.com/2") {
		t.Errorf("other line lost:\n%s", got)
	}
}

func TestApply_SingleLineHTMLBodySplitsAtBlocks(t *testing.T) {
	// An exported body can arrive as one unbroken <div> chain. Block
	// boundaries must separate the sections or everything after the failed
	// marker would swallow the rest of the note.
	note := "<div>https://a.com/1</div><div>https://a.com/2</div>" +
		"<div>---FAILED URLS---</div><div>https://a.com/old</div>"
	got, rep := ApplyAt(testClock, []models.Attempt{success("https://a.com/1", "id1")}, note, probeWith("id1"))

	if strings.Contains(got, "https://a.com/1") {
		t.Errorf("verified URL still present:\n%s", got)
	}
	idx := strings.Index(got, "---FAILED URLS---")
	if idx < 0 {
		t.Fatalf("failed trailer missing:\n%s", got)
	}
	if !strings.Contains(got[:idx], "https://a.com/2") {
		t.Errorf("body URL shunted out of the body:\n%s", got)
	}
	if !strings.Contains(got[idx:], "https://a.com/old") {
		t.Errorf("parked URL lost:\n%s", got)
	}
	if rep.VerifiedSuccess != 1 || rep.LinesRemoved != 1 {
		t.Errorf("report = %+v", rep)
	}
}

func TestApply_CleanupTrailerOnChange(t *testing.T) {
	note := "https://a.com/1\n"
	got, _ := ApplyAt(testClock, []models.Attempt{success("https://a.com/1", "id1")}, note, probeWith("id1"))

	if !strings.Contains(got, "---CLEANUP LOG---") {
		t.Errorf("cleanup trailer missing:\n%s", got)
	}
	if !strings.Contains(got, "Cleanup: 20250301_1405 (Removed 1 successful, Moved 0 failed)") {
		t.Errorf("cleanup entry wrong:\n%s", got)
	}
}

func TestApply_NoChangeNoCleanupEntry(t *testing.T) {
	note := "https://a.com/other\n"
	got, rep := ApplyAt(testClock, nil, note, probeWith())
	if rep.Changed() {
		t.Errorf("empty log changed note: %+v", rep)
	}
	if strings.Contains(got, "---CLEANUP LOG---") {
		t.Errorf("cleanup trailer added without changes:\n%s", got)
	}
}
