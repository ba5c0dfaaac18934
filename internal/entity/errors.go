package entity

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidURL is returned when the supplied value can't be parsed as an absolute URL.
	ErrInvalidURL = errors.New("invalid url")
	// ErrURLTooLong is returned when the supplied URL exceeds MaxURLLength characters.
	ErrURLTooLong = errors.New("url too long")
	// ErrInvalidInput is returned when a request argument other than the URL is rejected.
	ErrInvalidInput = errors.New("invalid input")
	// ErrURLNotFound is returned when a URL with the specified short code cannot be found.
	ErrURLNotFound = errors.New("url not found")
	// ErrBlockedURL is reserved for policy rejections of a URL.
	ErrBlockedURL = errors.New("url is blocked")
	// ErrRateLimitExceeded is reserved for callers that exceeded their request budget.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrShortCodeExists is returned when attempting to save a URL with a short code that already exists.
	ErrShortCodeExists = errors.New("short code exists")
	// ErrShortCodeExhausted is returned when every generated short code collided with an existing one.
	ErrShortCodeExhausted = errors.New("short code allocation exhausted")
	// ErrConnection is returned when a storage backend can't be reached.
	ErrConnection = errors.New("connection error")
	// ErrDatabase is returned when a storage backend fails to execute an operation.
	ErrDatabase = errors.New("database error")
	// ErrInternal is returned for failures that are neither input nor storage related.
	ErrInternal = errors.New("internal error")
)

// MaxURLLength is the maximum accepted length of a URL before canonicalization.
const MaxURLLength = 2048

// StatusCode maps an error kind to the HTTP status code that should be reported to clients.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrURLNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidURL),
		errors.Is(err, ErrURLTooLong),
		errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrBlockedURL):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
