// Package notestore abstracts the external note the pipeline feeds from.
// The note application itself is opaque: implementations only read and
// replace a whole note body, all-or-nothing.
package notestore

import "context"

// Store is the narrow interface over the note application.
type Store interface {
	// Read returns the note body, or apperr.ErrNoteNotFound.
	Read(ctx context.Context, title string) (string, error)
	// Write replaces the note body atomically from the reader's point of
	// view: a failed write leaves the previous body intact.
	Write(ctx context.Context, title, body string) error
}
