// Package attemptlog reads and writes the per-batch CSV download log.
// One row per attempt, readable independent of which process wrote it.
package attemptlog

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/arnvik/raido/internal/batch"
	"github.com/arnvik/raido/internal/models"
	"github.com/arnvik/raido/internal/storage"
)

// LogsDir is the workarea subdirectory that holds download logs.
const LogsDir = "logs"

const timeLayout = "2006-01-02 15:04:05"

var header = []string{"Status", "Title", "Duration", "Download Time", "Video ID", "URL", "Timestamp", "Error"}

// PathFor returns the workarea-relative log path matching a batch file name:
// urls/<base>_urls.txt logs to logs/<base>_urls_log.csv.
func PathFor(batchName string) string {
	base := strings.TrimSuffix(batchName, ".txt")
	return path.Join(LogsDir, base+"_log.csv")
}

// Write persists attempts as one CSV log, atomically.
func Write(store *storage.FS, rel string, attempts []models.Attempt) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("attemptlog: write header: %w", err)
	}
	for _, a := range attempts {
		row := []string{
			string(a.Status),
			truncate(a.Title, 50),
			a.Duration,
			a.Elapsed,
			a.ExternalID,
			a.URL,
			a.Timestamp.Format(timeLayout),
			truncate(a.Error, 80),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("attemptlog: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("attemptlog: flush: %w", err)
	}
	return store.Write(rel, buf.Bytes())
}

// Read parses a CSV log back into attempts. Kind is derived from the file
// name, the same way the batch files carry it.
func Read(store *storage.FS, rel string) ([]models.Attempt, error) {
	data, err := store.Read(rel)
	if err != nil {
		return nil, err
	}
	kind := batch.KindFromName(path.Base(rel))

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("attemptlog: parse %s: %w", rel, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[name] = i
	}
	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var out []models.Attempt
	for _, row := range records[1:] {
		a := models.Attempt{
			URL:        field(row, "URL"),
			Kind:       kind,
			Status:     parseStatus(field(row, "Status")),
			Title:      field(row, "Title"),
			Duration:   field(row, "Duration"),
			Elapsed:    field(row, "Download Time"),
			ExternalID: field(row, "Video ID"),
			Error:      field(row, "Error"),
		}
		if ts, err := time.Parse(timeLayout, field(row, "Timestamp")); err == nil {
			a.Timestamp = ts
		}
		if a.URL == "" {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// parseStatus accepts both the plain status tokens and the decorated ones
// older logs carry ("✅ Success", "❌ Failed").
func parseStatus(s string) models.AttemptStatus {
	if strings.Contains(strings.ToLower(s), "success") {
		return models.StatusSuccess
	}
	return models.StatusFailed
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
