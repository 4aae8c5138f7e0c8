package internal

import (
	"context"
	"log/slog"

	"github.com/arnvik/raido/internal/models"
	"github.com/arnvik/raido/internal/notestore"
	"github.com/arnvik/raido/internal/reconcile"
)

// Fetcher downloads every entry of a batch and reports one attempt per URL.
type Fetcher interface {
	RunBatch(ctx context.Context, b *models.Batch) []models.Attempt
}

// Importer pushes a dated download folder into the remote music library.
type Importer interface {
	Import(ctx context.Context, remoteDir string) error
}

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	logger   *slog.Logger
	notes    notestore.Store
	fetcher  Fetcher
	probe    reconcile.Probe
	importer Importer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogger overrides the default JSON logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *application) {
		a.logger = logger
	}
}

// WithNoteStore overrides the note store built from configuration.
func WithNoteStore(s notestore.Store) Option {
	return func(a *application) {
		a.notes = s
	}
}

// WithFetcher overrides the yt-dlp downloader.
func WithFetcher(f Fetcher) Option {
	return func(a *application) {
		a.fetcher = f
	}
}

// WithProbe overrides the on-disk artifact probe.
func WithProbe(p reconcile.Probe) Option {
	return func(a *application) {
		a.probe = p
	}
}

// WithImporter overrides the remote music importer.
func WithImporter(im Importer) Option {
	return func(a *application) {
		a.importer = im
	}
}
