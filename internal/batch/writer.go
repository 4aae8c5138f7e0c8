// Package batch materializes extracted candidates into immutable, timestamped
// batch files, dedup-filtered against the ledger.
package batch

import (
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/arnvik/raido/internal/extract"
	"github.com/arnvik/raido/internal/ledger"
	"github.com/arnvik/raido/internal/models"
	"github.com/arnvik/raido/internal/storage"
)

// URLsDir is the workarea subdirectory that holds batch files.
const URLsDir = "urls"

const nameTimeLayout = "20060102_1504"

// Writer commits candidate URLs as batch files and ledger entries.
type Writer struct {
	store  *storage.FS
	db     *ledger.DB
	logger *slog.Logger
	now    func() time.Time
}

// Result reports what one commit produced. A nil batch means nothing new was
// found for that kind: absence, not an empty batch.
type Result struct {
	Audio        *models.Batch
	Video        *models.Batch
	SkippedAudio int // candidates already in the ledger
	SkippedVideo int
}

// Batches returns the non-nil batches of the result.
func (r Result) Batches() []*models.Batch {
	var out []*models.Batch
	if r.Audio != nil {
		out = append(out, r.Audio)
	}
	if r.Video != nil {
		out = append(out, r.Video)
	}
	return out
}

// NewWriter creates a batch writer over the given workarea and ledger.
func NewWriter(store *storage.FS, db *ledger.DB, logger *slog.Logger) *Writer {
	return &Writer{store: store, db: db, logger: logger, now: time.Now}
}

// SetClock overrides the timestamp source. Used by tests.
func (w *Writer) SetClock(now func() time.Time) {
	w.now = now
}

// Commit filters candidates against the ledger and, per kind with survivors,
// writes exactly one immutable batch file and registers its URLs. Committing
// the same candidates twice without external ledger changes creates no new
// batches the second time.
func (w *Writer) Commit(cands extract.Candidates) (Result, error) {
	var res Result
	createdAt := w.now()

	audio, skippedAudio, err := w.commitKind(models.KindAudio, cands.Audio, createdAt)
	if err != nil {
		return res, err
	}
	video, skippedVideo, err := w.commitKind(models.KindVideo, cands.Video, createdAt)
	if err != nil {
		return res, err
	}

	res.Audio, res.SkippedAudio = audio, skippedAudio
	res.Video, res.SkippedVideo = video, skippedVideo
	return res, nil
}

func (w *Writer) commitKind(kind models.Kind, entries []models.URLEntry, createdAt time.Time) (*models.Batch, int, error) {
	fresh, err := w.db.FilterNew(entries)
	if err != nil {
		return nil, 0, err
	}
	skipped := len(entries) - len(fresh)
	if skipped > 0 {
		w.logger.Info("skipped already-seen urls",
			slog.String("kind", kind.String()),
			slog.Int("count", skipped))
	}
	if len(fresh) == 0 {
		return nil, skipped, nil
	}

	b := models.Batch{
		Name:      FileName(createdAt, len(fresh), kind),
		Kind:      kind,
		CreatedAt: createdAt,
		Entries:   fresh,
	}
	b.Path = path.Join(URLsDir, b.Name)

	var sb strings.Builder
	for _, e := range fresh {
		sb.WriteString(e.URL)
		sb.WriteByte('\n')
	}
	if err := w.store.Write(b.Path, []byte(sb.String())); err != nil {
		return nil, skipped, fmt.Errorf("batch: write %s: %w", b.Name, err)
	}
	if err := w.db.AddBatch(b); err != nil {
		return nil, skipped, err
	}

	w.logger.Info("batch created",
		slog.String("name", b.Name),
		slog.String("kind", kind.String()),
		slog.Int("count", len(fresh)))
	return &b, skipped, nil
}

// FileName builds the deterministic batch file name from creation time (minute
// resolution), entry count, and kind. Names sort lexically by creation order.
func FileName(createdAt time.Time, count int, kind models.Kind) string {
	return fmt.Sprintf("%s_%d_%s_urls.txt", createdAt.Format(nameTimeLayout), count, kind.Ext())
}

// Load reads a batch file back into a Batch. Kind is derived from the name.
func Load(store *storage.FS, name string) (*models.Batch, error) {
	rel := path.Join(URLsDir, name)
	data, err := store.Read(rel)
	if err != nil {
		return nil, err
	}
	kind := KindFromName(name)
	b := &models.Batch{Name: name, Path: rel, Kind: kind}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		b.Entries = append(b.Entries, models.URLEntry{Raw: line, URL: line, Kind: kind})
	}
	return b, nil
}

// Latest returns the name of the most recent batch file of the given kind:
// the lexical maximum, since names embed the timestamp first.
func Latest(store *storage.FS, kind models.Kind) (string, error) {
	names, err := store.List(URLsDir, fmt.Sprintf("_%s_urls.txt", kind.Ext()))
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", nil
	}
	return names[len(names)-1], nil
}

// KindFromName derives the kind from a batch or log file name. Names without
// a recognizable kind token default to video, matching extraction defaults.
func KindFromName(name string) models.Kind {
	if strings.Contains(strings.ToLower(name), "mp3") {
		return models.KindAudio
	}
	return models.KindVideo
}
