package ports

import (
	"context"
	"io"

	"lexmeet/internal/core/domain"
)

// Navigator moves the participant to another application route.
type Navigator interface {
	Navigate(route domain.Route)
}

// Notifier shows transient toast messages.
type Notifier interface {
	Error(message string)
	Success(message string)
}

// StoredFile is a file kept for the local chat panel.
type StoredFile struct {
	Name string
	Size int64
	Type string
	// URL is only meaningful to the local participant.
	URL string
}

// FileStore keeps chat attachments and hands out local preview URLs.
type FileStore interface {
	Put(ctx context.Context, name, contentType string, size int64, body io.Reader) (StoredFile, error)
	Release(ctx context.Context, url string) error
}
