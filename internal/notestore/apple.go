package notestore

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/arnvik/raido/internal/apperr"
)

const readScript = `on run argv
	tell application "Notes"
		repeat with n in notes
			if name of n is (item 1 of argv) then
				return body of n
			end if
		end repeat
	end tell
	error "note not found" number 1
end run`

const writeScript = `on run argv
	set fh to open for access (POSIX file (item 2 of argv))
	set content to read fh as «class utf8»
	close access fh
	tell application "Notes"
		repeat with n in notes
			if name of n is (item 1 of argv) then
				set body of n to content
				return
			end if
		end repeat
	end tell
	error "note not found" number 1
end run`

type appleRunFunc func(ctx context.Context, args ...string) ([]byte, error)

// Apple reads and writes notes through osascript. Bodies come back as the
// HTML the Notes application stores internally.
type Apple struct {
	run appleRunFunc
}

func NewApple() *Apple {
	return &Apple{
		run: func(ctx context.Context, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, "osascript", args...).CombinedOutput()
		},
	}
}

// SetRunner replaces the osascript invocation, for tests.
func (a *Apple) SetRunner(fn func(ctx context.Context, args ...string) ([]byte, error)) {
	a.run = fn
}

func (a *Apple) Read(ctx context.Context, title string) (string, error) {
	out, err := a.run(ctx, "-e", readScript, title)
	if err != nil {
		if strings.Contains(string(out), "note not found") {
			return "", apperr.ErrNoteNotFound
		}
		return "", fmt.Errorf("notestore: read %q: %w: %s", title, err, strings.TrimSpace(string(out)))
	}
	body := strings.TrimRight(string(out), "\n")
	if strings.TrimSpace(body) == "" {
		return "", apperr.ErrNoteEmpty
	}
	return body, nil
}

func (a *Apple) Write(ctx context.Context, title, body string) error {
	tmp, err := os.CreateTemp("", "raido-note-*.html")
	if err != nil {
		return fmt.Errorf("notestore: write %q: %w", title, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		return fmt.Errorf("notestore: write %q: %w", title, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("notestore: write %q: %w", title, err)
	}
	out, err := a.run(ctx, "-e", writeScript, title, tmp.Name())
	if err != nil {
		if strings.Contains(string(out), "note not found") {
			return apperr.ErrNoteNotFound
		}
		return fmt.Errorf("notestore: write %q: %w: %s", title, err, strings.TrimSpace(string(out)))
	}
	return nil
}
