package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"lexmeet/internal/core/domain"
	"lexmeet/internal/core/ports"

	"github.com/google/uuid"
)

const blobPrefix = "blob:lexmeet/"

type blob struct {
	file ports.StoredFile
	data []byte
}

// MemoryFileStore keeps attachments in process and hands out blob: URLs that
// only this process can resolve. Every upload takes a fixed delay.
type MemoryFileStore struct {
	delay time.Duration

	mu    sync.RWMutex
	blobs map[string]blob
}

func NewMemoryFileStore(delay time.Duration) *MemoryFileStore {
	return &MemoryFileStore{
		delay: delay,
		blobs: make(map[string]blob),
	}
}

func (s *MemoryFileStore) Put(ctx context.Context, name, contentType string, size int64, body io.Reader) (ports.StoredFile, error) {
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ports.StoredFile{}, ctx.Err()
		case <-timer.C:
		}
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, body)
	if err != nil {
		return ports.StoredFile{}, fmt.Errorf("read attachment %s: %w", name, err)
	}
	if size <= 0 {
		size = n
	}

	file := ports.StoredFile{
		Name: name,
		Size: size,
		Type: contentType,
		URL:  blobPrefix + uuid.NewString(),
	}

	s.mu.Lock()
	s.blobs[file.URL] = blob{file: file, data: buf.Bytes()}
	s.mu.Unlock()
	return file, nil
}

// Open returns the content behind a URL produced by Put.
func (s *MemoryFileStore) Open(url string) (ports.StoredFile, io.Reader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[url]
	if !ok {
		return ports.StoredFile{}, nil, domain.ErrFileNotFound
	}
	return b.file, bytes.NewReader(b.data), nil
}

func (s *MemoryFileStore) Release(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[url]; !ok {
		return domain.ErrFileNotFound
	}
	delete(s.blobs, url)
	return nil
}

func (s *MemoryFileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
