package notestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/arnvik/raido/internal/apperr"
	"github.com/arnvik/raido/internal/storage"
)

// File keeps one note per file under a directory, named "<title>.txt".
// It stands in for the desktop note application on machines without it.
type File struct {
	store *storage.FS
}

func NewFile(store *storage.FS) *File {
	return &File{store: store}
}

func (f *File) path(title string) string {
	return title + ".txt"
}

func (f *File) Read(_ context.Context, title string) (string, error) {
	data, err := f.store.Read(f.path(title))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", apperr.ErrNoteNotFound
		}
		return "", fmt.Errorf("notestore: read %q: %w", title, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", apperr.ErrNoteEmpty
	}
	return string(data), nil
}

func (f *File) Write(_ context.Context, title, body string) error {
	if err := f.store.Write(f.path(title), []byte(body)); err != nil {
		return fmt.Errorf("notestore: write %q: %w", title, err)
	}
	return nil
}
