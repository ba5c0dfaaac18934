// Package memory provides a process-local URL repository.
// Nothing survives a restart; it is meant for tests and single-instance deployments.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vadimbarashkov/shortener/internal/entity"
)

// Option configures a URLRepository.
type Option func(*URLRepository)

// WithClock overrides the function used to stamp CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(r *URLRepository) {
		r.now = now
	}
}

// URLRepository keeps shortened URLs in a map guarded by a single RWMutex.
// Mutating operations hold the write lock; statistics reads share the read lock.
type URLRepository struct {
	mu     sync.RWMutex
	urls   map[string]*entity.URL
	nextID int64
	now    func() time.Time
}

// NewURLRepository creates an empty repository.
func NewURLRepository(opts ...Option) *URLRepository {
	r := &URLRepository{
		urls: make(map[string]*entity.URL),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Save stores a new URL with zero visits. An existing short code is never overwritten.
func (r *URLRepository) Save(ctx context.Context, shortCode, originalURL string) (*entity.URL, error) {
	const op = "adapter.repository.memory.URLRepository.Save"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.urls[shortCode]; ok {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrShortCodeExists)
	}

	r.nextID++
	url := &entity.URL{
		ID:          r.nextID,
		ShortCode:   shortCode,
		OriginalURL: originalURL,
		CreatedAt:   r.now(),
	}
	r.urls[shortCode] = url

	return url.Clone(), nil
}

// RetrieveAndUpdateStats increments the visit counter and returns the updated URL.
func (r *URLRepository) RetrieveAndUpdateStats(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "adapter.repository.memory.URLRepository.RetrieveAndUpdateStats"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	url, ok := r.urls[shortCode]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	url.Visits++

	return url.Clone(), nil
}

// RetrieveByShortCode returns the URL without modifying it.
func (r *URLRepository) RetrieveByShortCode(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "adapter.repository.memory.URLRepository.RetrieveByShortCode"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	url, ok := r.urls[shortCode]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	return url.Clone(), nil
}

// Len returns the number of stored URLs.
func (r *URLRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.urls)
}
