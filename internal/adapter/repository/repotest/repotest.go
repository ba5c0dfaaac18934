// Package repotest provides the behaviour every URL repository must share.
// Backend packages run Suite against their own implementation.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/vadimbarashkov/shortener/internal/entity"
)

// Repository is the storage capability under test.
type Repository interface {
	Save(ctx context.Context, shortCode, originalURL string) (*entity.URL, error)
	RetrieveAndUpdateStats(ctx context.Context, shortCode string) (*entity.URL, error)
	RetrieveByShortCode(ctx context.Context, shortCode string) (*entity.URL, error)
}

// Suite checks a Repository against the storage contract.
// NewRepository must return an empty repository for every test.
type Suite struct {
	suite.Suite
	NewRepository func(t *testing.T) Repository
	// Concurrency is the number of goroutines used by the contention tests.
	Concurrency int

	repo Repository
}

// Run executes the contract suite against the repositories built by newRepo.
func Run(t *testing.T, newRepo func(t *testing.T) Repository) {
	suite.Run(t, &Suite{NewRepository: newRepo, Concurrency: 50})
}

func (s *Suite) SetupTest() {
	s.repo = s.NewRepository(s.T())
}

func (s *Suite) TestSave() {
	ctx := context.Background()

	url, err := s.repo.Save(ctx, "abc123", "https://example.com/")

	s.Require().NoError(err)
	s.Require().NotNil(url)
	s.NotZero(url.ID)
	s.Equal("abc123", url.ShortCode)
	s.Equal("https://example.com/", url.OriginalURL)
	s.Zero(url.Visits)
	s.False(url.CreatedAt.IsZero())
}

func (s *Suite) TestSaveAssignsDistinctIDs() {
	ctx := context.Background()

	first, err := s.repo.Save(ctx, "abc123", "https://example.com/")
	s.Require().NoError(err)

	second, err := s.repo.Save(ctx, "def456", "https://example.com/")
	s.Require().NoError(err)

	s.NotEqual(first.ID, second.ID)
}

func (s *Suite) TestSaveConflict() {
	ctx := context.Background()

	_, err := s.repo.Save(ctx, "abc123", "https://example.com/")
	s.Require().NoError(err)

	url, err := s.repo.Save(ctx, "abc123", "https://other.example.com/")

	s.Error(err)
	s.ErrorIs(err, entity.ErrShortCodeExists)
	s.Nil(url)

	stored, err := s.repo.RetrieveByShortCode(ctx, "abc123")
	s.Require().NoError(err)
	s.Equal("https://example.com/", stored.OriginalURL)
}

func (s *Suite) TestRetrieveAndUpdateStats() {
	ctx := context.Background()

	saved, err := s.repo.Save(ctx, "abc123", "https://example.com/")
	s.Require().NoError(err)

	for want := int64(1); want <= 3; want++ {
		url, err := s.repo.RetrieveAndUpdateStats(ctx, "abc123")

		s.Require().NoError(err)
		s.Equal(want, url.Visits)
		s.Equal(saved.ID, url.ID)
		s.Equal("https://example.com/", url.OriginalURL)
	}
}

func (s *Suite) TestRetrieveAndUpdateStatsNotFound() {
	url, err := s.repo.RetrieveAndUpdateStats(context.Background(), "missing")

	s.Error(err)
	s.ErrorIs(err, entity.ErrURLNotFound)
	s.Nil(url)
}

func (s *Suite) TestRetrieveByShortCode() {
	ctx := context.Background()

	_, err := s.repo.Save(ctx, "abc123", "https://example.com/")
	s.Require().NoError(err)

	_, err = s.repo.RetrieveAndUpdateStats(ctx, "abc123")
	s.Require().NoError(err)

	for i := 0; i < 3; i++ {
		url, err := s.repo.RetrieveByShortCode(ctx, "abc123")

		s.Require().NoError(err)
		s.Equal(int64(1), url.Visits)
	}
}

func (s *Suite) TestRetrieveByShortCodeNotFound() {
	url, err := s.repo.RetrieveByShortCode(context.Background(), "missing")

	s.Error(err)
	s.ErrorIs(err, entity.ErrURLNotFound)
	s.Nil(url)
}

func (s *Suite) TestConcurrentResolve() {
	ctx := context.Background()

	_, err := s.repo.Save(ctx, "abc123", "https://example.com/")
	s.Require().NoError(err)

	var wg sync.WaitGroup
	errs := make(chan error, s.Concurrency)

	for i := 0; i < s.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.repo.RetrieveAndUpdateStats(ctx, "abc123"); err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		s.NoError(err)
	}

	url, err := s.repo.RetrieveByShortCode(ctx, "abc123")
	s.Require().NoError(err)
	s.Equal(int64(s.Concurrency), url.Visits)
}

func (s *Suite) TestConcurrentSaveSameCode() {
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		saved     int
		conflicts int
	)

	for i := 0; i < s.Concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			_, err := s.repo.Save(ctx, "abc123", fmt.Sprintf("https://example.com/%d", i))

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				saved++
			case s.ErrorIs(err, entity.ErrShortCodeExists):
				conflicts++
			}
		}(i)
	}

	wg.Wait()

	s.Equal(1, saved)
	s.Equal(s.Concurrency-1, conflicts)
}
