// Package app assembles the service from configuration and runs it until the
// context is canceled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/httplog/v2"
	"github.com/redis/go-redis/v9"
	"github.com/vadimbarashkov/shortener/internal/adapter/repository/memory"
	"github.com/vadimbarashkov/shortener/internal/adapter/repository/postgres"
	"github.com/vadimbarashkov/shortener/internal/config"
	"github.com/vadimbarashkov/shortener/internal/entity"
	"github.com/vadimbarashkov/shortener/internal/metrics"
	"github.com/vadimbarashkov/shortener/internal/shortcode"
	"github.com/vadimbarashkov/shortener/internal/usecase"
	"github.com/vadimbarashkov/shortener/migrations"
	"golang.org/x/sync/errgroup"

	myhttp "github.com/vadimbarashkov/shortener/internal/adapter/delivery/http"
	redisrepo "github.com/vadimbarashkov/shortener/internal/adapter/repository/redis"
	pgdb "github.com/vadimbarashkov/shortener/pkg/postgres"
)

// Version is reported by the health endpoint. It is set at build time.
var Version = "dev"

type urlRepository interface {
	Save(ctx context.Context, shortCode, originalURL string) (*entity.URL, error)
	RetrieveByShortCode(ctx context.Context, shortCode string) (*entity.URL, error)
	RetrieveAndUpdateStats(ctx context.Context, shortCode string) (*entity.URL, error)
}

// NewLogger builds the structured logger: JSON in prod, concise text elsewhere.
func NewLogger(cfg *config.Config) *httplog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	return httplog.NewLogger("url-shortener", httplog.Options{
		JSON:           cfg.Env == config.EnvProd,
		Concise:        cfg.Env != config.EnvProd,
		LogLevel:       level,
		RequestHeaders: cfg.Env == config.EnvDev,
		Tags: map[string]string{
			"env":     cfg.Env,
			"version": Version,
		},
	})
}

func Run(ctx context.Context, cfg *config.Config, logger *httplog.Logger) error {
	const op = "app.Run"

	metrics.Init()

	repo, closeRepo, err := newRepository(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer closeRepo()

	handler, err := newHandler(cfg, repo, logger)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        handler,
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server",
			slog.String("addr", server.Addr),
			slog.String("storage", cfg.Storage.Backend),
			slog.Bool("tls", cfg.HTTPServer.TLS()),
		)

		var err error

		if cfg.HTTPServer.TLS() {
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		} else {
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	return g.Wait()
}

func newHandler(cfg *config.Config, repo urlRepository, logger *httplog.Logger) (http.Handler, error) {
	gen, err := shortcode.NewNanoID(cfg.ShortCodeLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create short code generator: %w", err)
	}

	uc := usecase.New(repo, gen, logger.Logger)

	return myhttp.NewRouter(logger, uc, Version), nil
}

// newRepository opens the configured storage backend. The returned func releases it.
func newRepository(ctx context.Context, cfg *config.Config) (urlRepository, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		db, err := pgdb.New(
			ctx,
			cfg.Postgres.DSN(),
			pgdb.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
			pgdb.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
			pgdb.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
			pgdb.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
			pgdb.WithConnectTimeout(cfg.Postgres.AcquireTimeout),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		if err := pgdb.RunMigrations(migrations.FS, cfg.Postgres.DSN()); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		repo := postgres.NewURLRepository(db, postgres.WithAcquireTimeout(cfg.Postgres.AcquireTimeout))

		return repo, func() { db.Close() }, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			DialTimeout: cfg.Redis.DialTimeout,
		})

		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		repo := redisrepo.NewURLRepository(client, redisrepo.WithKeyPrefix(cfg.Redis.KeyPrefix))

		return repo, func() { client.Close() }, nil

	case config.BackendMemory:
		return memory.NewURLRepository(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
