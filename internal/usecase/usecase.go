package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/vadimbarashkov/shortener/internal/entity"
	"github.com/vadimbarashkov/shortener/internal/metrics"
	"github.com/vadimbarashkov/shortener/internal/shortcode"
	"golang.org/x/net/idna"
)

const maxRetries = 5

// specialSchemes are the hierarchical schemes that always carry a host.
var specialSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"ws":    true,
	"wss":   true,
	"ftp":   true,
}

type urlRepository interface {
	Save(ctx context.Context, shortCode, originalURL string) (*entity.URL, error)
	RetrieveByShortCode(ctx context.Context, shortCode string) (*entity.URL, error)
	RetrieveAndUpdateStats(ctx context.Context, shortCode string) (*entity.URL, error)
}

// URLUseCase orchestrates validation, short code allocation and storage of shortened URLs.
type URLUseCase struct {
	urlRepo   urlRepository
	generator shortcode.Generator
	logger    *slog.Logger
}

// New creates a URLUseCase backed by urlRepo. A nil logger discards output.
func New(urlRepo urlRepository, generator shortcode.Generator, logger *slog.Logger) *URLUseCase {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &URLUseCase{
		urlRepo:   urlRepo,
		generator: generator,
		logger:    logger,
	}
}

// ShortenURL validates rawURL, allocates a unique short code and persists the pair.
// A short code collision or a reserved code is retried with a fresh code up to maxRetries times.
func (uc *URLUseCase) ShortenURL(ctx context.Context, rawURL string) (*entity.URL, error) {
	const op = "usecase.URLUseCase.ShortenURL"

	if len(rawURL) > entity.MaxURLLength {
		metrics.ShortenTotal.WithLabelValues(metrics.ResultInvalid).Inc()
		return nil, fmt.Errorf("%s: %d characters exceeds %d: %w", op, len(rawURL), entity.MaxURLLength, entity.ErrURLTooLong)
	}

	originalURL, err := Canonicalize(rawURL)
	if err != nil {
		metrics.ShortenTotal.WithLabelValues(metrics.ResultInvalid).Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		shortCode, err := uc.generator.Generate()
		if err != nil {
			metrics.ShortenTotal.WithLabelValues(metrics.ResultError).Inc()
			return nil, fmt.Errorf("%s: failed to generate short code: %w: %w", op, entity.ErrInternal, err)
		}

		if shortcode.IsReserved(shortCode) {
			metrics.ShortenRetries.Inc()
			uc.logger.Warn("reserved short code, retrying",
				slog.String("op", op),
				slog.String("short_code", shortCode),
				slog.Int("attempt", attempt),
			)

			continue
		}

		url, err := uc.urlRepo.Save(ctx, shortCode, originalURL)
		if err != nil {
			if errors.Is(err, entity.ErrShortCodeExists) {
				metrics.ShortenRetries.Inc()
				uc.logger.Warn("short code collision, retrying",
					slog.String("op", op),
					slog.String("short_code", shortCode),
					slog.Int("attempt", attempt),
				)

				continue
			}

			metrics.ShortenTotal.WithLabelValues(metrics.ResultError).Inc()
			return nil, fmt.Errorf("%s: failed to shorten url: %w", op, err)
		}

		metrics.ShortenTotal.WithLabelValues(metrics.ResultSuccess).Inc()
		uc.logger.Debug("url shortened",
			slog.String("short_code", url.ShortCode),
			slog.String("original_url", url.OriginalURL),
		)

		return url, nil
	}

	metrics.ShortenTotal.WithLabelValues(metrics.ResultExhausted).Inc()
	uc.logger.Error("short code allocation exhausted",
		slog.String("op", op),
		slog.Int("attempts", maxRetries),
	)

	return nil, fmt.Errorf("%s: %d attempts: %w", op, maxRetries, entity.ErrShortCodeExhausted)
}

// ResolveShortCode returns the original URL for shortCode and counts the visit.
func (uc *URLUseCase) ResolveShortCode(ctx context.Context, shortCode string) (string, error) {
	const op = "usecase.URLUseCase.ResolveShortCode"

	if shortCode == "" {
		return "", fmt.Errorf("%s: empty short code: %w", op, entity.ErrInvalidInput)
	}

	url, err := uc.urlRepo.RetrieveAndUpdateStats(ctx, shortCode)
	if err != nil {
		if errors.Is(err, entity.ErrURLNotFound) {
			metrics.RedirectsTotal.WithLabelValues(metrics.ResultNotFound).Inc()
		} else {
			metrics.RedirectsTotal.WithLabelValues(metrics.ResultError).Inc()
		}

		return "", fmt.Errorf("%s: failed to resolve short code: %w", op, err)
	}

	metrics.RedirectsTotal.WithLabelValues(metrics.ResultSuccess).Inc()

	return url.OriginalURL, nil
}

// GetURLStats returns the stored URL for shortCode without counting a visit.
func (uc *URLUseCase) GetURLStats(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "usecase.URLUseCase.GetURLStats"

	if shortCode == "" {
		return nil, fmt.Errorf("%s: empty short code: %w", op, entity.ErrInvalidInput)
	}

	url, err := uc.urlRepo.RetrieveByShortCode(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get url stats: %w", op, err)
	}

	return url, nil
}

// Canonicalize parses rawURL as an absolute URL and returns its canonical form:
// scheme lower-cased, host lower-cased and IDNA-encoded, and an empty path on a
// URL with a host replaced by "/". A special scheme written without "//", such
// as "http:example.com", is read as if the slashes were present.
func Canonicalize(rawURL string) (string, error) {
	const op = "usecase.Canonicalize"

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, entity.ErrInvalidURL, err)
	}

	if !u.IsAbs() {
		return "", fmt.Errorf("%s: missing scheme: %w", op, entity.ErrInvalidURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)

	if specialSchemes[u.Scheme] && u.Opaque != "" {
		u, err = reparseWithAuthority(u)
		if err != nil {
			return "", fmt.Errorf("%s: %w: %w", op, entity.ErrInvalidURL, err)
		}
	}

	if u.Opaque != "" {
		return u.String(), nil
	}

	if specialSchemes[u.Scheme] && u.Hostname() == "" {
		return "", fmt.Errorf("%s: missing host: %w", op, entity.ErrInvalidURL)
	}

	host, err := canonicalHost(u)
	if err != nil {
		return "", fmt.Errorf("%s: invalid host %q: %w: %w", op, u.Host, entity.ErrInvalidURL, err)
	}
	u.Host = host

	if u.Host != "" && u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	}

	return u.String(), nil
}

// reparseWithAuthority parses the opaque part of u as "//" followed by an authority.
func reparseWithAuthority(u *url.URL) (*url.URL, error) {
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(u.Opaque)
	if u.ForceQuery || u.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(u.RawQuery)
	}
	if u.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(u.EscapedFragment())
	}

	return url.Parse(b.String())
}

func canonicalHost(u *url.URL) (string, error) {
	hostname, port := u.Hostname(), u.Port()
	if hostname == "" {
		return strings.ToLower(u.Host), nil
	}

	if ip := net.ParseIP(hostname); ip == nil && !isASCII(hostname) {
		ascii, err := idna.Lookup.ToASCII(hostname)
		if err != nil {
			return "", err
		}
		hostname = ascii
	}
	hostname = strings.ToLower(hostname)

	if port != "" {
		return net.JoinHostPort(hostname, port), nil
	}
	if strings.Contains(hostname, ":") {
		return "[" + hostname + "]", nil
	}

	return hostname, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}

	return true
}
