// Package downloader wraps the yt-dlp CLI. Media extraction itself stays in
// the external tool; this adapter only builds invocations, parses metadata,
// and turns each URL into exactly one Attempt.
package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/arnvik/raido/internal/models"
)

const (
	defaultBinary   = "yt-dlp"
	defaultRetries  = 10
	probeTimeout    = 30 * time.Second
	downloadTimeout = 2 * time.Hour

	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
)

// Options configures the yt-dlp invocation.
type Options struct {
	Binary         string // yt-dlp binary, defaults to "yt-dlp" on PATH
	AudioDir       string // base dir for mp3 output
	VideoDir       string // base dir for mp4 output
	CookiesBrowser string // chrome|firefox|safari|edge, empty to skip
	Retries        int
}

// runFunc executes a command and returns its combined output. Swapped out in
// tests so no real subprocess runs.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Client invokes yt-dlp.
type Client struct {
	opts   Options
	logger *slog.Logger
	run    runFunc
	now    func() time.Time
}

// New creates a downloader client.
func New(opts Options, logger *slog.Logger) *Client {
	if opts.Binary == "" {
		opts.Binary = defaultBinary
	}
	if opts.Retries <= 0 {
		opts.Retries = defaultRetries
	}
	return &Client{
		opts:   opts,
		logger: logger,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
		now: time.Now,
	}
}

// SetRunner overrides subprocess execution. Used by tests.
func (c *Client) SetRunner(run runFunc) {
	c.run = run
}

// SetClock overrides the timestamp source. Used by tests.
func (c *Client) SetClock(now func() time.Time) {
	c.now = now
}

// Version reports the installed yt-dlp version, or an error when the binary
// is missing.
func (c *Client) Version(ctx context.Context) (string, error) {
	out, err := c.run(ctx, c.opts.Binary, "--version")
	if err != nil {
		return "", fmt.Errorf("downloader: %s not available: %w", c.opts.Binary, err)
	}
	return string(out), nil
}

// metadata is the subset of yt-dlp --dump-json output the pipeline needs.
type metadata struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

// probeInfo asks yt-dlp for metadata without downloading anything.
func (c *Client) probeInfo(ctx context.Context, url string) (metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	args := []string{"--dump-json", "--no-check-certificate", "--user-agent", userAgent}
	args = c.appendCookies(args)
	args = append(args, url)

	out, err := c.run(ctx, c.opts.Binary, args...)
	if err != nil {
		return metadata{}, fmt.Errorf("downloader: probe %s: %w", url, err)
	}
	var m metadata
	if err := json.Unmarshal(out, &m); err != nil {
		return metadata{}, fmt.Errorf("downloader: parse metadata: %w", err)
	}
	return m, nil
}

// targetDir returns (and creates) the dated output folder for a kind.
func (c *Client) targetDir(kind models.Kind) (string, error) {
	base := c.opts.VideoDir
	if kind == models.KindAudio {
		base = c.opts.AudioDir
	}
	dir := filepath.Join(base, c.now().Format("20060102"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("downloader: create output dir: %w", err)
	}
	return dir, nil
}

// fetchArgs builds the yt-dlp argument list for one download. Retries and
// sleep flags let yt-dlp absorb transient rate limiting internally; the
// pipeline only sees the final outcome.
func (c *Client) fetchArgs(url string, kind models.Kind, dir string) []string {
	var args []string
	if kind == models.KindAudio {
		args = append(args,
			"-x",
			"--audio-format", "mp3",
			"--audio-quality", "0",
		)
	} else {
		args = append(args,
			"-f", "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best",
			"--merge-output-format", "mp4",
		)
	}
	args = append(args,
		"--user-agent", userAgent,
		"--sleep-requests", "1",
		"--sleep-interval", "3",
		"--max-sleep-interval", "6",
		"--retries", fmt.Sprint(c.opts.Retries),
		"--fragment-retries", fmt.Sprint(c.opts.Retries),
		"--no-check-certificate",
		"--no-progress",
		"-o", filepath.Join(dir, "%(title)s_%(id)s.%(ext)s"),
	)
	args = c.appendCookies(args)
	return append(args, url)
}

func (c *Client) appendCookies(args []string) []string {
	if c.opts.CookiesBrowser != "" {
		args = append(args, "--cookies-from-browser", c.opts.CookiesBrowser)
	}
	return args
}

// Download fetches one URL and always returns an Attempt, never an error: a
// failed fetch is an outcome, not a fault. A download whose metadata probe
// yields no id is recorded as failed because its artifact can never be
// verified.
func (c *Client) Download(ctx context.Context, url string, kind models.Kind) models.Attempt {
	a := models.Attempt{URL: url, Kind: kind, Title: "Unknown"}
	started := c.now()

	finish := func() models.Attempt {
		a.Elapsed = formatElapsed(c.now().Sub(started))
		a.Timestamp = c.now()
		return a
	}
	fail := func(msg string) models.Attempt {
		a.Status = models.StatusFailed
		a.Error = msg
		return finish()
	}

	meta, err := c.probeInfo(ctx, url)
	if err == nil {
		a.Title = meta.Title
		a.ExternalID = meta.ID
		a.Duration = formatDuration(meta.Duration)
	}
	if a.ExternalID == "" {
		return fail("no usable media id")
	}

	dir, err := c.targetDir(kind)
	if err != nil {
		return fail(err.Error())
	}

	dlCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()
	out, err := c.run(dlCtx, c.opts.Binary, c.fetchArgs(url, kind, dir)...)
	if err != nil {
		c.logger.Warn("download failed",
			slog.String("url", url),
			slog.String("error", err.Error()))
		return fail(tail(string(out), 80))
	}

	a.Status = models.StatusSuccess
	return finish()
}

// RunBatch downloads every entry of the batch sequentially, in order. One
// entry failing never aborts the rest: the result always carries exactly one
// attempt per entry.
func (c *Client) RunBatch(ctx context.Context, b *models.Batch) []models.Attempt {
	attempts := make([]models.Attempt, 0, len(b.Entries))
	for i, e := range b.Entries {
		c.logger.Info("downloading",
			slog.Int("n", i+1),
			slog.Int("total", len(b.Entries)),
			slog.String("url", e.URL),
			slog.String("kind", b.Kind.String()))
		attempts = append(attempts, c.Download(ctx, e.URL, b.Kind))
	}
	return attempts
}

// formatDuration renders media length in seconds as h:mm:ss or m:ss.
func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// formatElapsed renders wall time compactly: "<1s", "45s", "2m 5s", "1h 3m 2s".
func formatElapsed(d time.Duration) string {
	total := int(d.Seconds())
	if total < 1 {
		return "<1s"
	}
	if total < 60 {
		return fmt.Sprintf("%ds", total)
	}
	m, s := total/60, total%60
	if m < 60 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%dh %dm %ds", m/60, m%60, s)
}

// tail returns the last n characters of s with newlines flattened, for
// single-line error columns.
func tail(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[len(r)-n:]
	}
	out := make([]rune, 0, len(r))
	for _, c := range r {
		if c == '\n' || c == '\r' {
			c = ' '
		}
		out = append(out, c)
	}
	return string(out)
}
