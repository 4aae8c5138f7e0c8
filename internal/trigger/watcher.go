package trigger

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/arnvik/raido/internal/apperr"
)

var watchDebounce = 2 * time.Second

// Watch starts an fsnotify watcher on the batch directory and triggers a
// run over every batch file dropped in from outside. Events are debounced
// so that a pair of files (audio and video) landing together starts a
// single run covering both. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, s *Server, urlsDir string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(urlsDir, 0o755); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(urlsDir); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("dir", urlsDir))

	// fireTimer debounces batch file drops into a single trigger; pending
	// holds the dropped file names until a run picks them up.
	var fireTimer *time.Timer
	var fireCh <-chan time.Time
	var pending []string
	seen := make(map[string]struct{})

	schedule := func() {
		if fireTimer == nil {
			fireTimer = time.NewTimer(watchDebounce)
			fireCh = fireTimer.C
		} else {
			fireTimer.Reset(watchDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if fireTimer != nil {
				fireTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fireCh:
			if _, err := s.StartRunFor(ctx, pending); err != nil {
				if errors.Is(err, apperr.ErrRunActive) {
					// Hold the pending files and try again after another
					// debounce window.
					logger.Info("watcher: run already active, retrying trigger")
					schedule()
				} else {
					logger.Error("watcher: trigger failed", slog.String("error", err.Error()))
				}
				continue
			}
			logger.Info("watcher: run triggered", slog.Int("batch_files", len(pending)))
			pending = nil
			seen = make(map[string]struct{})

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !strings.HasSuffix(ev.Name, "_urls.txt") {
				continue
			}
			// Skip in-progress atomic writes; the rename fires Create.
			if strings.Contains(ev.Name, ".raido-tmp-") {
				continue
			}
			logger.Debug("watcher: batch file event", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			name := filepath.Base(ev.Name)
			if _, dup := seen[name]; !dup {
				seen[name] = struct{}{}
				pending = append(pending, name)
			}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
