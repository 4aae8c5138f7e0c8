package apperr

import "errors"

var (
	ErrNoteNotFound = errors.New("note not found")
	ErrNoteEmpty    = errors.New("note is empty")
	ErrRunActive    = errors.New("a run is already active")
)
