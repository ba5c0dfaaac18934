// Package redis implements the URL repository on Redis. Each URL is a hash keyed by
// its short code; identifiers come from a shared counter. Every mutation is a single
// Lua script so it executes atomically on the server.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vadimbarashkov/shortener/internal/entity"
)

const defaultKeyPrefix = "url"

const (
	fieldID          = "id"
	fieldOriginalURL = "original_url"
	fieldShortCode   = "short_code"
	fieldCreatedAt   = "created_at"
	fieldVisits      = "visits"
)

// KEYS[1] url hash, KEYS[2] id counter
// ARGV[1] short code, ARGV[2] original url, ARGV[3] created_at in unix microseconds
var saveScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
local id = redis.call("INCR", KEYS[2])
redis.call("HSET", KEYS[1],
	"id", id,
	"original_url", ARGV[2],
	"short_code", ARGV[1],
	"created_at", ARGV[3],
	"visits", 0)
return id
`)

// KEYS[1] url hash
var incrVisitsScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return false
end
redis.call("HINCRBY", KEYS[1], "visits", 1)
return redis.call("HGETALL", KEYS[1])
`)

func isConnectionError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed)
}

func mapError(op string, err error) error {
	switch {
	case errors.Is(err, redis.Nil):
		return fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	case isConnectionError(err):
		return fmt.Errorf("%s: %w: %w", op, entity.ErrConnection, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, entity.ErrDatabase, err)
	}
}

// Option configures a URLRepository.
type Option func(*URLRepository)

// WithKeyPrefix namespaces every key written by the repository.
func WithKeyPrefix(prefix string) Option {
	return func(r *URLRepository) {
		r.prefix = prefix
	}
}

// WithClock overrides the function used to stamp CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(r *URLRepository) {
		r.now = now
	}
}

type URLRepository struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewURLRepository(client redis.UniversalClient, opts ...Option) *URLRepository {
	r := &URLRepository{
		client: client,
		prefix: defaultKeyPrefix,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *URLRepository) urlKey(shortCode string) string {
	return r.prefix + ":code:" + shortCode
}

func (r *URLRepository) seqKey() string {
	return r.prefix + ":seq"
}

func (r *URLRepository) Save(ctx context.Context, shortCode, originalURL string) (*entity.URL, error) {
	const op = "adapter.repository.redis.URLRepository.Save"

	createdAt := r.now().UTC().Truncate(time.Microsecond)

	id, err := saveScript.Run(ctx, r.client,
		[]string{r.urlKey(shortCode), r.seqKey()},
		shortCode, originalURL, createdAt.UnixMicro(),
	).Int64()
	if err != nil {
		return nil, mapError(op, err)
	}

	if id == 0 {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrShortCodeExists)
	}

	return &entity.URL{
		ID:          id,
		ShortCode:   shortCode,
		OriginalURL: originalURL,
		CreatedAt:   createdAt,
	}, nil
}

func (r *URLRepository) RetrieveAndUpdateStats(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "adapter.repository.redis.URLRepository.RetrieveAndUpdateStats"

	vals, err := incrVisitsScript.Run(ctx, r.client, []string{r.urlKey(shortCode)}).StringSlice()
	if err != nil {
		return nil, mapError(op, err)
	}

	fields := make(map[string]string, len(vals)/2)
	for i := 0; i+1 < len(vals); i += 2 {
		fields[vals[i]] = vals[i+1]
	}

	url, err := parseURL(fields)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, entity.ErrDatabase, err)
	}

	return url, nil
}

func (r *URLRepository) RetrieveByShortCode(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "adapter.repository.redis.URLRepository.RetrieveByShortCode"

	fields, err := r.client.HGetAll(ctx, r.urlKey(shortCode)).Result()
	if err != nil {
		return nil, mapError(op, err)
	}

	if len(fields) == 0 {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	url, err := parseURL(fields)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, entity.ErrDatabase, err)
	}

	return url, nil
}

func parseURL(fields map[string]string) (*entity.URL, error) {
	id, err := strconv.ParseInt(fields[fieldID], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s field: %w", fieldID, err)
	}

	visits, err := strconv.ParseInt(fields[fieldVisits], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s field: %w", fieldVisits, err)
	}

	createdAt, err := strconv.ParseInt(fields[fieldCreatedAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s field: %w", fieldCreatedAt, err)
	}

	return &entity.URL{
		ID:          id,
		ShortCode:   fields[fieldShortCode],
		OriginalURL: fields[fieldOriginalURL],
		Visits:      visits,
		CreatedAt:   time.UnixMicro(createdAt).UTC(),
	}, nil
}
