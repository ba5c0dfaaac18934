// Package postgres implements the URL repository on top of PostgreSQL.
// Every operation runs in its own transaction on a dedicated connection.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/vadimbarashkov/shortener/internal/entity"
)

const (
	uniqueViolationErrCode = "23505"
	defaultAcquireTimeout  = 30 * time.Second
)

func isUniqueViolationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.SQLState() == uniqueViolationErrCode
}

func isConnectionError(err error) bool {
	var connErr *pgconn.ConnectError
	return errors.Is(err, driver.ErrBadConn) || errors.As(err, &connErr)
}

// mapError translates a statement error into a domain error kind, keeping the cause.
func mapError(op string, err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	case isUniqueViolationError(err):
		return fmt.Errorf("%s: %w", op, entity.ErrShortCodeExists)
	case isConnectionError(err):
		return fmt.Errorf("%s: %w: %w", op, entity.ErrConnection, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, entity.ErrDatabase, err)
	}
}

type urlDB struct {
	ID          int64     `db:"id"`
	OriginalURL string    `db:"original_url"`
	ShortURL    string    `db:"short_url"`
	CreatedAt   time.Time `db:"created_at"`
	Visits      int64     `db:"visits"`
}

func (u *urlDB) toEntity() *entity.URL {
	return &entity.URL{
		ID:          u.ID,
		ShortCode:   u.ShortURL,
		OriginalURL: u.OriginalURL,
		Visits:      u.Visits,
		CreatedAt:   u.CreatedAt,
	}
}

// Option configures a URLRepository.
type Option func(*URLRepository)

// WithAcquireTimeout bounds how long an operation waits for a pooled connection.
// A non-positive value disables the bound.
func WithAcquireTimeout(d time.Duration) Option {
	return func(r *URLRepository) {
		r.acquireTimeout = d
	}
}

type URLRepository struct {
	db             *sqlx.DB
	acquireTimeout time.Duration
}

func NewURLRepository(db *sqlx.DB, opts ...Option) *URLRepository {
	r := &URLRepository{
		db:             db,
		acquireTimeout: defaultAcquireTimeout,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// inTx runs fn inside a transaction and commits it. When fn fails the transaction
// is rolled back; a failed rollback is reported together with the original error.
func (r *URLRepository) inTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	acquireCtx := ctx
	if r.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, r.acquireTimeout)
		defer cancel()
	}

	conn, err := r.db.Connx(acquireCtx)
	if err != nil {
		return fmt.Errorf("%s: failed to acquire connection: %w: %w", op, entity.ErrConnection, err)
	}
	defer conn.Close()

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to begin transaction: %w: %w", op, entity.ErrConnection, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%s: rollback failed: %w", op, errors.Join(entity.ErrDatabase, err, rbErr))
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: failed to commit transaction: %w: %w", op, entity.ErrDatabase, err)
	}

	return nil
}

func (r *URLRepository) Save(ctx context.Context, shortCode, originalURL string) (*entity.URL, error) {
	const op = "adapter.repository.postgres.URLRepository.Save"
	const query = `INSERT INTO shortened_urls (original_url, short_url)
		VALUES ($1, $2)
		RETURNING id, original_url, short_url, created_at, visits`

	var url urlDB

	err := r.inTx(ctx, op, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &url, query, originalURL, shortCode); err != nil {
			return mapError(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return url.toEntity(), nil
}

// RetrieveAndUpdateStats increments visits with a single UPDATE ... RETURNING so
// concurrent resolves serialise on the row lock instead of overwriting each other.
func (r *URLRepository) RetrieveAndUpdateStats(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "adapter.repository.postgres.URLRepository.RetrieveAndUpdateStats"
	const query = `UPDATE shortened_urls
		SET visits = visits + 1
		WHERE short_url = $1
		RETURNING id, original_url, short_url, created_at, visits`

	var url urlDB

	err := r.inTx(ctx, op, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &url, query, shortCode); err != nil {
			return mapError(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return url.toEntity(), nil
}

func (r *URLRepository) RetrieveByShortCode(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "adapter.repository.postgres.URLRepository.RetrieveByShortCode"
	const query = `SELECT id, original_url, short_url, created_at, visits
		FROM shortened_urls
		WHERE short_url = $1`

	var url urlDB

	err := r.inTx(ctx, op, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &url, query, shortCode); err != nil {
			return mapError(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return url.toEntity(), nil
}
