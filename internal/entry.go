// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arnvik/raido/internal/apperr"
	"github.com/arnvik/raido/internal/attemptlog"
	"github.com/arnvik/raido/internal/batch"
	"github.com/arnvik/raido/internal/downloader"
	"github.com/arnvik/raido/internal/extract"
	"github.com/arnvik/raido/internal/ledger"
	"github.com/arnvik/raido/internal/mcpserver"
	"github.com/arnvik/raido/internal/models"
	"github.com/arnvik/raido/internal/musicimport"
	"github.com/arnvik/raido/internal/notestore"
	"github.com/arnvik/raido/internal/reconcile"
	"github.com/arnvik/raido/internal/sse"
	"github.com/arnvik/raido/internal/storage"
	"github.com/arnvik/raido/internal/trigger"
)

// RunFlags selects which pipeline stages a run executes.
type RunFlags struct {
	SkipSync      bool
	SkipDownload  bool
	SkipReconcile bool
	SkipImport    bool
	DryRun        bool
	BatchFile     string // run a single already-committed batch file
}

// App wires the pipeline components together. One App serves many runs.
type App struct {
	cfg      *Config
	logger   *slog.Logger
	store    *storage.FS
	db       *ledger.DB
	notes    notestore.Store
	fetcher  Fetcher
	probe    reconcile.Probe
	importer Importer
	broker   *sse.Broker
	onStep   func(runID, name, detail string)
}

// NewApp builds the application from options. The caller must Close it.
func NewApp(opts ...Option) (*App, error) {
	a := &application{}
	for _, opt := range opts {
		opt(a)
	}

	if a.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := a.config

	logger := a.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
		slog.SetDefault(logger)
	}

	logger.Info("Configuration loaded",
		slog.String("workarea", cfg.Workarea.Path),
		slog.String("note_title", cfg.Note.Title),
		slog.String("note_store", cfg.Note.Store),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Workarea.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create workarea dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Workarea.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := ledger.Open(cfg.Workarea.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("init ledger: %w", err)
	}

	notes := a.notes
	if notes == nil {
		switch cfg.Note.Store {
		case NoteStoreFile:
			if err := os.MkdirAll(cfg.Note.Dir, 0o755); err != nil {
				db.Close()
				return nil, fmt.Errorf("create note dir: %w", err)
			}
			noteFS, err := storage.NewFS(cfg.Note.Dir)
			if err != nil {
				db.Close()
				return nil, fmt.Errorf("init note store: %w", err)
			}
			notes = notestore.NewFile(noteFS)
		default:
			notes = notestore.NewApple()
		}
	}

	fetcher := a.fetcher
	if fetcher == nil {
		fetcher = downloader.New(downloader.Options{
			Binary:         cfg.Download.Binary,
			AudioDir:       cfg.Download.MP3Dir,
			VideoDir:       cfg.Download.MP4Dir,
			CookiesBrowser: cfg.Download.CookiesBrowser,
			Retries:        cfg.Download.Retries,
		}, logger)
	}

	probe := a.probe
	if probe == nil {
		probe = reconcile.NewFSProbe(cfg.Download.MP3Dir, cfg.Download.MP4Dir)
	}

	importer := a.importer
	if importer == nil && cfg.Import.Enabled {
		importer = musicimport.New(cfg.Import.Host, cfg.Import.User, cfg.Import.ScriptPath, logger)
	}

	return &App{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		db:       db,
		notes:    notes,
		fetcher:  fetcher,
		probe:    probe,
		importer: importer,
	}, nil
}

// Close releases the ledger connection.
func (app *App) Close() error {
	return app.db.Close()
}

func (app *App) step(runID, name, detail string) {
	if app.broker != nil {
		app.broker.PublishRunEvent("run.step", runID, name, detail)
	}
	if app.onStep != nil {
		app.onStep(runID, name, detail)
	}
}

// RunPipeline executes one full pass: sync the note into batches, download
// every new URL, reconcile the results back into the note, then hand audio
// over to the music importer. Stages may be skipped via flags; a dry run
// reports what sync would commit and what reconcile would change, writing
// nothing.
func (app *App) RunPipeline(ctx context.Context, runID string, flags RunFlags) error {
	log := app.logger
	if runID != "" {
		log = log.With(slog.String("run_id", runID))
	}

	var noteBody string
	var batches []*models.Batch

	switch {
	case flags.BatchFile != "":
		b, err := batch.Load(app.store, flags.BatchFile)
		if err != nil {
			return fmt.Errorf("load batch: %w", err)
		}
		log.Info("running single batch", slog.String("batch", b.Name), slog.Int("urls", len(b.Entries)))
		batches = append(batches, b)

	case flags.SkipSync:
		// Without a sync pass the run picks up the latest committed batch
		// of each kind, the way the standalone download stage always did.
		batches = app.latestBatches(log)

	default:
		app.step(runID, "sync", app.cfg.Note.Title)
		body, err := app.notes.Read(ctx, app.cfg.Note.Title)
		switch {
		case errors.Is(err, apperr.ErrNoteNotFound), errors.Is(err, apperr.ErrNoteEmpty):
			log.Info("note has no content, nothing to sync", slog.String("title", app.cfg.Note.Title))
		case err != nil:
			return fmt.Errorf("read note: %w", err)
		default:
			noteBody = body
			cands := extract.Extract(body)
			log.Info("note scanned",
				slog.Int("audio_candidates", len(cands.Audio)),
				slog.Int("video_candidates", len(cands.Video)))

			if flags.DryRun {
				if err := app.reportDryRun(log, cands); err != nil {
					return err
				}
			} else {
				w := batch.NewWriter(app.store, app.db, log)
				res, err := w.Commit(cands)
				if err != nil {
					return fmt.Errorf("commit batches: %w", err)
				}
				batches = res.Batches()
				if len(batches) == 0 {
					log.Info("no new urls, nothing to download",
						slog.Int("skipped_audio", res.SkippedAudio),
						slog.Int("skipped_video", res.SkippedVideo))
				}
			}
		}
	}

	if !flags.SkipDownload && !flags.DryRun {
		for _, b := range batches {
			app.step(runID, "download", b.Name)
			log.Info("downloading batch", slog.String("batch", b.Name), slog.Int("urls", len(b.Entries)))
			attempts := app.fetcher.RunBatch(ctx, b)
			rel := attemptlog.PathFor(b.Name)
			if err := attemptlog.Write(app.store, rel, attempts); err != nil {
				return fmt.Errorf("write attempt log: %w", err)
			}
		}
	}

	if !flags.SkipReconcile {
		rbatches := batches
		if flags.DryRun {
			// A dry run reconciles against the latest committed batches,
			// computing the report without touching the note.
			rbatches = app.latestBatches(log)
		}
		attempts, err := app.readLogs(rbatches)
		if err != nil {
			return err
		}
		if len(attempts) > 0 {
			app.step(runID, "reconcile", app.cfg.Note.Title)
			if err := app.reconcileNote(ctx, noteBody, attempts, flags.DryRun, log); err != nil {
				return err
			}
		}
	}

	if !flags.SkipImport && !flags.DryRun {
		if err := app.importAudio(ctx, runID, batches, log); err != nil {
			return err
		}
	}

	return nil
}

// RunDropped runs the download and reconcile stages over batch files dropped
// into the urls directory by hand. A file that already has an attempt log is
// one of the pipeline's own committed batches echoed back by the watcher and
// is skipped.
func (app *App) RunDropped(ctx context.Context, runID string, files []string) error {
	log := app.logger
	if runID != "" {
		log = log.With(slog.String("run_id", runID))
	}
	for _, name := range files {
		if app.store.Exists(attemptlog.PathFor(name)) {
			log.Info("batch already processed, skipping", slog.String("batch", name))
			continue
		}
		if err := app.RunPipeline(ctx, runID, RunFlags{BatchFile: name}); err != nil {
			return err
		}
	}
	return nil
}

// latestBatches loads the most recent committed batch of each kind.
func (app *App) latestBatches(log *slog.Logger) []*models.Batch {
	var out []*models.Batch
	for _, kind := range []models.Kind{models.KindAudio, models.KindVideo} {
		name, err := batch.Latest(app.store, kind)
		if err != nil || name == "" {
			continue
		}
		b, err := batch.Load(app.store, name)
		if err != nil {
			log.Warn("latest batch unreadable", slog.String("batch", name), slog.String("error", err.Error()))
			continue
		}
		out = append(out, b)
	}
	return out
}

func (app *App) reportDryRun(log *slog.Logger, cands extract.Candidates) error {
	newAudio, err := app.db.FilterNew(cands.Audio)
	if err != nil {
		return fmt.Errorf("dry run filter: %w", err)
	}
	newVideo, err := app.db.FilterNew(cands.Video)
	if err != nil {
		return fmt.Errorf("dry run filter: %w", err)
	}
	log.Info("dry run, no batches committed",
		slog.Int("would_commit_audio", len(newAudio)),
		slog.Int("would_commit_video", len(newVideo)),
		slog.Int("already_known", cands.Total()-len(newAudio)-len(newVideo)))
	return nil
}

// readLogs collects the attempt logs of this run's batches. A batch whose
// log is missing (download skipped, crash mid-run) contributes nothing;
// its URLs stay in the note untouched.
func (app *App) readLogs(batches []*models.Batch) ([]models.Attempt, error) {
	var attempts []models.Attempt
	for _, b := range batches {
		rel := attemptlog.PathFor(b.Name)
		if !app.store.Exists(rel) {
			continue
		}
		got, err := attemptlog.Read(app.store, rel)
		if err != nil {
			return nil, fmt.Errorf("read attempt log %s: %w", rel, err)
		}
		attempts = append(attempts, got...)
	}
	return attempts, nil
}

func (app *App) reconcileNote(ctx context.Context, noteBody string, attempts []models.Attempt, dryRun bool, log *slog.Logger) error {
	title := app.cfg.Note.Title
	if noteBody == "" {
		body, err := app.notes.Read(ctx, title)
		if err != nil {
			if errors.Is(err, apperr.ErrNoteNotFound) || errors.Is(err, apperr.ErrNoteEmpty) {
				log.Info("note gone or empty, skipping reconcile", slog.String("title", title))
				return nil
			}
			return fmt.Errorf("read note: %w", err)
		}
		noteBody = body
	}

	newBody, rep := reconcile.Apply(attempts, noteBody, app.probe)
	log.Info("reconcile pass finished",
		slog.Int("verified_success", rep.VerifiedSuccess),
		slog.Int("verified_failure", rep.VerifiedFailure),
		slog.Int("untouched", rep.Untouched),
		slog.Int("lines_removed", rep.LinesRemoved),
		slog.Int("lines_moved", rep.LinesMoved))

	if dryRun || !rep.Changed() {
		return nil
	}
	if err := app.notes.Write(ctx, title, newBody); err != nil {
		return fmt.Errorf("write note: %w", err)
	}
	return nil
}

// importAudio hands the dated audio folder to the remote music importer
// when this run produced at least one successful audio download.
func (app *App) importAudio(ctx context.Context, runID string, batches []*models.Batch, log *slog.Logger) error {
	if app.importer == nil {
		return nil
	}

	gotAudio := false
	for _, b := range batches {
		if b.Kind != models.KindAudio {
			continue
		}
		attempts, err := app.readLogs([]*models.Batch{b})
		if err != nil {
			return err
		}
		for _, at := range attempts {
			if at.Status == models.StatusSuccess {
				gotAudio = true
				break
			}
		}
	}
	if !gotAudio {
		return nil
	}

	remoteDir := path.Join(app.cfg.Import.RemoteDir, time.Now().Format("20060102"))
	app.step(runID, "import", remoteDir)
	if err := app.importer.Import(ctx, remoteDir); err != nil {
		// The downloads themselves succeeded; surface the failure without
		// failing the run.
		log.Error("music import failed", slog.String("error", err.Error()))
	}
	return nil
}

// Run executes a single pipeline run and exits. Used by the run command.
func Run(ctx context.Context, flags RunFlags, opts ...Option) error {
	app, err := NewApp(opts...)
	if err != nil {
		return err
	}
	defer app.Close()
	return app.RunPipeline(ctx, "", flags)
}

// RunServe starts the trigger HTTP server and the batch directory watcher,
// blocking until the context is cancelled or a shutdown signal arrives.
func RunServe(ctx context.Context, opts ...Option) error {
	app, err := NewApp(opts...)
	if err != nil {
		return err
	}
	defer app.Close()

	cfg := app.cfg
	logger := app.logger

	broker := sse.NewBroker()
	defer broker.Close()
	app.broker = broker

	runner := trigger.NewServer(func(runCtx context.Context, runID string, files []string) error {
		if len(files) > 0 {
			return app.RunDropped(runCtx, runID, files)
		}
		return app.RunPipeline(runCtx, runID, RunFlags{})
	}, broker, logger)
	app.onStep = func(_, name, detail string) {
		runner.RecordStep(name, detail)
	}

	router := trigger.NewRouter(runner, cfg.Auth.AuthEnabled(), cfg.Auth.Token)
	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: router,
	}

	urlsDir, err := app.store.Abs(batch.URLsDir)
	if err != nil {
		return err
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return trigger.Watch(gCtx, runner, urlsDir, logger)
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdio until the client disconnects.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := NewApp(opts...)
	if err != nil {
		return err
	}
	defer app.Close()

	runner := trigger.NewServer(func(runCtx context.Context, runID string, _ []string) error {
		return app.RunPipeline(runCtx, runID, RunFlags{})
	}, nil, app.logger)

	srv := mcpserver.New(runner, app.db, app.notes, app.cfg.Note.Title)
	return srv.ServeStdio()
}
