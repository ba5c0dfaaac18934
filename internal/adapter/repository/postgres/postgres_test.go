package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/vadimbarashkov/shortener/internal/entity"
)

func TestIsUniqueViolationError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "unique violation error",
			err:  &pgconn.PgError{Code: uniqueViolationErrCode},
			want: true,
		},
		{
			name: "wrapped unique violation error",
			err:  errors.Join(errors.New("insert"), &pgconn.PgError{Code: uniqueViolationErrCode}),
			want: true,
		},
		{
			name: "not unique violation error",
			err:  &pgconn.PgError{Code: "unknown error code"},
			want: false,
		},
		{
			name: "not PgError",
			err:  errors.New("unknown error"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolationError(tt.err))
		})
	}
}

func TestMapError(t *testing.T) {
	assert.ErrorIs(t, mapError("op", driver.ErrBadConn), entity.ErrConnection)
	assert.ErrorIs(t, mapError("op", &pgconn.PgError{Code: uniqueViolationErrCode}), entity.ErrShortCodeExists)
	assert.ErrorIs(t, mapError("op", errors.New("syntax error")), entity.ErrDatabase)
}

type URLRepositoryTestSuite struct {
	suite.Suite
	errUnknown  error
	errRollback error
	errCommit   error
	columns     []string
	createdAt   time.Time
	db          *sqlx.DB
	mock        sqlmock.Sqlmock
	repo        *URLRepository
}

func (suite *URLRepositoryTestSuite) SetupSuite() {
	suite.errUnknown = errors.New("unknown error")
	suite.errRollback = errors.New("rollback error")
	suite.errCommit = errors.New("commit error")
	suite.columns = []string{"id", "original_url", "short_url", "created_at", "visits"}
	suite.createdAt = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
}

func (suite *URLRepositoryTestSuite) SetupSubTest() {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		suite.T().Fatalf("Failed to create mock database: %v", err)
	}

	suite.db = sqlx.NewDb(mockDB, "sqlmock")
	suite.T().Cleanup(func() {
		suite.db.Close()
	})

	suite.mock = mock
	suite.repo = NewURLRepository(suite.db)
}

func (suite *URLRepositoryTestSuite) TearDownSubTest() {
	suite.NoError(suite.mock.ExpectationsWereMet())
}

func (suite *URLRepositoryTestSuite) row(visits int64) *sqlmock.Rows {
	return sqlmock.NewRows(suite.columns).
		AddRow(1, "https://example.com/", "abc123", suite.createdAt, visits)
}

func (suite *URLRepositoryTestSuite) TestSave() {
	suite.Run("begin error", func() {
		suite.mock.ExpectBegin().WillReturnError(suite.errUnknown)

		url, err := suite.repo.Save(context.Background(), "abc123", "https://example.com/")

		suite.ErrorIs(err, entity.ErrConnection)
		suite.ErrorIs(err, suite.errUnknown)
		suite.Nil(url)
	})

	suite.Run("short code exists", func() {
		suite.mock.ExpectBegin()
		suite.mock.ExpectQuery(`INSERT INTO shortened_urls`).
			WithArgs("https://example.com/", "abc123").
			WillReturnError(&pgconn.PgError{Code: uniqueViolationErrCode})
		suite.mock.ExpectRollback()

		url, err := suite.repo.Save(context.Background(), "abc123", "https://example.com/")

		suite.ErrorIs(err, entity.ErrShortCodeExists)
		suite.NotErrorIs(err, entity.ErrDatabase)
		suite.Nil(url)
	})

	suite.Run("unknown error", func() {
		suite.mock.ExpectBegin()
		suite.mock.ExpectQuery(`INSERT INTO shortened_urls`).
			WithArgs("https://example.com/", "abc123").
			WillReturnError(suite.errUnknown)
		suite.mock.ExpectRollback()

		url, err := suite.repo.Save(context.Background(), "abc123", "https://example.com/")

		suite.ErrorIs(err, entity.ErrDatabase)
		suite.ErrorIs(err, suite.errUnknown)
		suite.Nil(url)
	})

	suite.Run("rollback error", func() {
		suite.mock.ExpectBegin()
		suite.mock.ExpectQuery(`INSERT INTO shortened_urls`).
			WithArgs("https://example.com/", "abc123").
			WillReturnError(&pgconn.PgError{Code: uniqueViolationErrCode})
		suite.mock.ExpectRollback().WillReturnError(suite.errRollback)

		url, err := suite.repo.Save(context.Background(), "abc123", "https://example.com/")

		suite.ErrorIs(err, entity.ErrDatabase)
		suite.ErrorIs(err, entity.ErrShortCodeExists)
		suite.ErrorIs(err, suite.errRollback)
		suite.Nil(url)
	})

	suite.Run("commit error", func() {
		suite.mock.ExpectBegin()
		suite.mock.ExpectQuery(`INSERT INTO shortened_urls`).
			WithArgs("https://example.com/", "abc123").
			WillReturnRows(suite.row(0))
		suite.mock.ExpectCommit().WillReturnError(suite.errCommit)

		url, err := suite.repo.Save(context.Background(), "abc123", "https://example.com/")

		suite.ErrorIs(err, entity.ErrDatabase)
		suite.ErrorIs(err, suite.errCommit)
		suite.Nil(url)
	})

	suite.Run("success", func() {
		suite.mock.ExpectBegin()
		suite.mock.ExpectQuery(`INSERT INTO shortened_urls`).
			WithArgs("https://example.com/", "abc123").
			WillReturnRows(suite.row(0))
		suite.mock.ExpectCommit()

		url, err := suite.repo.Save(context.Background(), "abc123", "https://example.com/")

		suite.NoError(err)
		suite.Equal(&entity.URL{
			ID:          1,
			ShortCode:   "abc123",
			OriginalURL: "https://example.com/",
			CreatedAt:   suite.createdAt,
		}, url)
	})
}

func (suite *URLRepositoryTestSuite) TestRetrieveAndUpdateStats() {
	suite.Run("url not found", func() {
		suite.mock.ExpectBegin()
		suite.mock.ExpectQuery(`UPDATE shortened_urls SET visits = visits \+ 1`).
			WithArgs("abc123").
			WillReturnRows(sqlmock.NewRows(suite.columns))
		suite.mock.ExpectRollback()

		url, err := suite.repo.RetrieveAndUpdateStats(context.Background(), "abc123")

		suite.ErrorIs(err, entity.ErrURLNotFound)
		suite.Nil(url)
	})

	suite.Run("unknown error", func() {
		suite.mock.ExpectBegin()
		suite.mock.ExpectQuery(`UPDATE shortened_urls`).
			WithArgs("abc123").
			WillReturnError(suite.errUnknown)
		suite.mock.ExpectRollback()

		url, err := suite.repo.RetrieveAndUpdateStats(context.Background(), "abc123")

		suite.ErrorIs(err, entity.ErrDatabase)
		suite.ErrorIs(err, suite.errUnknown)
		suite.Nil(url)
	})

	suite.Run("connection error", func() {
		suite.mock.ExpectBegin()
		suite.mock.ExpectQuery(`UPDATE shortened_urls`).
			WithArgs("abc123").
			WillReturnError(&pgconn.ConnectError{})
		suite.mock.ExpectRollback()

		url, err := suite.repo.RetrieveAndUpdateStats(context.Background(), "abc123")

		suite.ErrorIs(err, entity.ErrConnection)
		suite.Nil(url)
	})

	suite.Run("success", func() {
		suite.mock.ExpectBegin()
		suite.mock.ExpectQuery(`UPDATE shortened_urls`).
			WithArgs("abc123").
			WillReturnRows(suite.row(1))
		suite.mock.ExpectCommit()

		url, err := suite.repo.RetrieveAndUpdateStats(context.Background(), "abc123")

		suite.NoError(err)
		suite.Require().NotNil(url)
		suite.Equal("abc123", url.ShortCode)
		suite.Equal(int64(1), url.Visits)
	})
}

func (suite *URLRepositoryTestSuite) TestRetrieveByShortCode() {
	suite.Run("url not found", func() {
		suite.mock.ExpectBegin()
		suite.mock.ExpectQuery(`SELECT (.+) FROM shortened_urls`).
			WithArgs("abc123").
			WillReturnRows(sqlmock.NewRows(suite.columns))
		suite.mock.ExpectRollback()

		url, err := suite.repo.RetrieveByShortCode(context.Background(), "abc123")

		suite.ErrorIs(err, entity.ErrURLNotFound)
		suite.Nil(url)
	})

	suite.Run("unknown error", func() {
		suite.mock.ExpectBegin()
		suite.mock.ExpectQuery(`SELECT (.+) FROM shortened_urls`).
			WithArgs("abc123").
			WillReturnError(suite.errUnknown)
		suite.mock.ExpectRollback()

		url, err := suite.repo.RetrieveByShortCode(context.Background(), "abc123")

		suite.ErrorIs(err, entity.ErrDatabase)
		suite.ErrorIs(err, suite.errUnknown)
		suite.Nil(url)
	})

	suite.Run("success", func() {
		suite.mock.ExpectBegin()
		suite.mock.ExpectQuery(`SELECT (.+) FROM shortened_urls`).
			WithArgs("abc123").
			WillReturnRows(suite.row(7))
		suite.mock.ExpectCommit()

		url, err := suite.repo.RetrieveByShortCode(context.Background(), "abc123")

		suite.NoError(err)
		suite.Require().NotNil(url)
		suite.Equal(int64(7), url.Visits)
		suite.Equal("https://example.com/", url.OriginalURL)
	})
}

func (suite *URLRepositoryTestSuite) TestAcquireTimeout() {
	suite.Run("pool exhausted", func() {
		suite.db.SetMaxOpenConns(1)
		suite.repo = NewURLRepository(suite.db, WithAcquireTimeout(20*time.Millisecond))

		held, err := suite.db.Connx(context.Background())
		suite.Require().NoError(err)
		defer held.Close()

		url, err := suite.repo.RetrieveByShortCode(context.Background(), "abc123")

		suite.ErrorIs(err, entity.ErrConnection)
		suite.ErrorIs(err, context.DeadlineExceeded)
		suite.Nil(url)
	})
}

func TestURLRepository(t *testing.T) {
	suite.Run(t, new(URLRepositoryTestSuite))
}
