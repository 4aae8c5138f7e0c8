package batch

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/arnvik/raido/internal/extract"
	"github.com/arnvik/raido/internal/ledger"
	"github.com/arnvik/raido/internal/models"
	"github.com/arnvik/raido/internal/storage"
	"github.com/arnvik/raido/internal/testutil"
)

func testWriter(t *testing.T) (*Writer, *storage.FS, *ledger.DB) {
	t.Helper()
	_, store := testutil.TestWorkarea(t)
	db := testutil.TestDB(t)
	w := NewWriter(store, db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	w.SetClock(func() time.Time {
		return time.Date(2025, 3, 1, 14, 5, 0, 0, time.UTC)
	})
	return w, store, db
}

func cands(audio []string, video ...string) extract.Candidates {
	var c extract.Candidates
	for _, u := range audio {
		c.Audio = append(c.Audio, models.URLEntry{Raw: u, URL: u, Kind: models.KindAudio})
	}
	for _, u := range video {
		c.Video = append(c.Video, models.URLEntry{Raw: u, URL: u, Kind: models.KindVideo})
	}
	return c
}

func audioCands(urls ...string) extract.Candidates { return cands(urls) }

func TestCommit_CreatesBatchFilePerKind(t *testing.T) {
	w, store, _ := testWriter(t)
	c := cands([]string{"https://a.com/2", "https://a.com/3"}, "https://a.com/1")

	res, err := w.Commit(c)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if res.Audio == nil || res.Video == nil {
		t.Fatalf("expected both batches, got %+v", res)
	}
	if res.Audio.Name != "20250301_1405_2_mp3_urls.txt" {
		t.Errorf("audio name = %q", res.Audio.Name)
	}
	if res.Video.Name != "20250301_1405_1_mp4_urls.txt" {
		t.Errorf("video name = %q", res.Video.Name)
	}

	data, err := store.Read(res.Audio.Path)
	if err != nil {
		t.Fatalf("Read batch file: %v", err)
	}
	if string(data) != "https://a.com/2\nhttps://a.com/3\n" {
		t.Errorf("batch content = %q", data)
	}
}

func TestCommit_SecondRunIsIdempotent(t *testing.T) {
	w, store, _ := testWriter(t)
	c := audioCands("https://a.com/1", "https://a.com/2")

	if _, err := w.Commit(c); err != nil {
		t.Fatalf("first Commit: %v", err)
	}
	res, err := w.Commit(c)
	if err != nil {
		t.Fatalf("second Commit: %v", err)
	}
	if res.Audio != nil {
		t.Errorf("second commit created a batch: %+v", res.Audio)
	}
	if res.SkippedAudio != 2 {
		t.Errorf("SkippedAudio = %d, want 2", res.SkippedAudio)
	}

	names, _ := store.List(URLsDir, "_urls.txt")
	if len(names) != 1 {
		t.Errorf("batch files = %v, want exactly one", names)
	}
}

func TestCommit_PartialOverlapOnlyNewURLs(t *testing.T) {
	w, _, _ := testWriter(t)
	if _, err := w.Commit(audioCands("https://a.com/3")); err != nil {
		t.Fatal(err)
	}
	res, err := w.Commit(audioCands("https://a.com/2", "https://a.com/3"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Audio == nil || len(res.Audio.Entries) != 1 {
		t.Fatalf("batch = %+v, want exactly the new URL", res.Audio)
	}
	if res.Audio.Entries[0].URL != "https://a.com/2" {
		t.Errorf("entry = %q", res.Audio.Entries[0].URL)
	}
	if res.SkippedAudio != 1 {
		t.Errorf("SkippedAudio = %d, want 1", res.SkippedAudio)
	}
}

func TestCommit_EmptyKindMeansNoBatch(t *testing.T) {
	w, store, _ := testWriter(t)
	res, err := w.Commit(cands(nil, "https://a.com/1"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Audio != nil {
		t.Error("audio batch created from zero candidates")
	}
	names, _ := store.List(URLsDir, "_mp3_urls.txt")
	if len(names) != 0 {
		t.Errorf("unexpected mp3 batch files: %v", names)
	}
}

func TestLatest_LexicalMax(t *testing.T) {
	_, store, _ := testWriter(t)
	_ = store.Write(URLsDir+"/20250301_1405_2_mp3_urls.txt", []byte("https://a.com/1\n"))
	_ = store.Write(URLsDir+"/20250302_0910_1_mp3_urls.txt", []byte("https://a.com/2\n"))
	_ = store.Write(URLsDir+"/20250303_0800_1_mp4_urls.txt", []byte("https://a.com/3\n"))

	name, err := Latest(store, models.KindAudio)
	if err != nil {
		t.Fatal(err)
	}
	if name != "20250302_0910_1_mp3_urls.txt" {
		t.Errorf("Latest = %q", name)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	w, store, _ := testWriter(t)
	res, err := w.Commit(audioCands("https://a.com/1", "https://a.com/2"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := Load(store, res.Audio.Name)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Kind != models.KindAudio {
		t.Errorf("kind = %q", got.Kind)
	}
	if len(got.Entries) != 2 || got.Entries[0].URL != "https://a.com/1" {
		t.Errorf("entries = %+v", got.Entries)
	}
}

func TestKindFromName(t *testing.T) {
	if KindFromName("20250301_1405_2_mp3_urls.txt") != models.KindAudio {
		t.Error("mp3 name should map to audio")
	}
	if KindFromName("20250301_1405_2_mp4_urls.txt") != models.KindVideo {
		t.Error("mp4 name should map to video")
	}
	if KindFromName("unmarked.txt") != models.KindVideo {
		t.Error("unmarked name should default to video")
	}
}
