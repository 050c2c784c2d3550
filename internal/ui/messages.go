// Package ui provides the Bubble Tea TUI for folio.
package ui

import (
	"github.com/abelbrown/folio/internal/acquire"
	"github.com/abelbrown/folio/internal/store"
)

// LoadProgress reports document download or read progress. Total is -1
// when unknown.
type LoadProgress struct {
	Done  int64
	Total int64
}

// DocOpened is sent when an open attempt finishes.
type DocOpened struct {
	Doc *acquire.Document
	Err error
}

// ViewRestored carries the saved view for the opened document, if any.
type ViewRestored struct {
	View  store.View
	Found bool
	Err   error
}

// PageChanged is sent when a page committed new state.
type PageChanged struct {
	Page int
}

// ViewChanged is sent when zoom, rotation, scroll or the page list changed.
type ViewChanged struct{}

// DocError carries a document-level error from the controller.
type DocError struct {
	Err error
}

// SearchStatus carries search progress text.
type SearchStatus struct {
	Msg string
}

// SearchDone is sent when a search scan finishes.
type SearchDone struct {
	Status string
	Page   int
	Hits   int
	Err    error
}

// PasswordRequest asks the user for a document password. The answer goes
// back on Reply.
type PasswordRequest struct {
	Retry bool
	Reply chan<- PasswordReply
}

// PasswordReply answers a PasswordRequest. OK false cancels.
type PasswordReply struct {
	Password string
	OK       bool
}

// TextCopied is sent after a copy to the clipboard.
type TextCopied struct {
	Page  int
	Bytes int
	Err   error
}

// ViewSaved is sent after the current view was written to history.
type ViewSaved struct {
	Err error
}

// RecentLoaded carries the view history, most recently opened first.
type RecentLoaded struct {
	Views []store.View
	Err   error
}

// ViewForgotten is sent after a document was removed from history.
type ViewForgotten struct {
	Digest string
	Err    error
}
