// Package musicimport pushes freshly downloaded audio into the music
// library on a remote machine by running an import script over ssh.
// Authentication is key-based only: BatchMode makes ssh fail fast instead
// of prompting when no key is accepted.
package musicimport

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const (
	connectTimeout = 10 * time.Second
	runTimeout     = 10 * time.Minute
)

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Importer runs the remote import script for one dated download folder.
type Importer struct {
	host   string
	user   string
	script string
	logger *slog.Logger
	run    runFunc
}

func New(host, user, script string, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		host:   host,
		user:   user,
		script: script,
		logger: logger,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// SetRunner replaces the ssh invocation, for tests.
func (im *Importer) SetRunner(fn func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	im.run = fn
}

func (im *Importer) args(remoteDir string) []string {
	return []string{
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=no",
		"-o", fmt.Sprintf("ConnectTimeout=%d", int(connectTimeout.Seconds())),
		fmt.Sprintf("%s@%s", im.user, im.host),
		im.script, remoteDir,
	}
}

// Import runs the configured script against remoteDir on the remote host.
func (im *Importer) Import(ctx context.Context, remoteDir string) error {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	im.logger.Info("starting music import", "host", im.host, "dir", remoteDir)
	out, err := im.run(ctx, "ssh", im.args(remoteDir)...)
	if err != nil {
		return fmt.Errorf("musicimport: ssh %s@%s: %w: %s",
			im.user, im.host, err, strings.TrimSpace(string(out)))
	}
	im.logger.Info("music import finished", "host", im.host, "dir", remoteDir)
	return nil
}
