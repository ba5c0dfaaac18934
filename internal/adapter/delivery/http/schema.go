package http

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/shortener/internal/entity"
	"github.com/vadimbarashkov/shortener/pkg/response"
)

// shortenRequest represents the body of a request to shorten a URL.
type shortenRequest struct {
	OriginalURL string `json:"original_url" validate:"required"`
}

// shortenResponse represents the body returned for a newly shortened URL.
type shortenResponse struct {
	ShortURL    string `json:"short_url"`
	OriginalURL string `json:"original_url"`
}

func toShortenResponse(url *entity.URL) shortenResponse {
	return shortenResponse{
		ShortURL:    url.ShortCode,
		OriginalURL: url.OriginalURL,
	}
}

// statsResponse represents the visit statistics of a shortened URL.
type statsResponse struct {
	ShortURL    string    `json:"short_url"`
	OriginalURL string    `json:"original_url"`
	Visits      int64     `json:"visits"`
	CreatedAt   time.Time `json:"created_at"`
}

func toStatsResponse(url *entity.URL) statsResponse {
	return statsResponse{
		ShortURL:    url.ShortCode,
		OriginalURL: url.OriginalURL,
		Visits:      url.Visits,
		CreatedAt:   url.CreatedAt,
	}
}

// clientErrors are the kinds whose text is safe to show to clients.
var clientErrors = []error{
	entity.ErrURLNotFound,
	entity.ErrURLTooLong,
	entity.ErrInvalidURL,
	entity.ErrInvalidInput,
	entity.ErrBlockedURL,
	entity.ErrRateLimitExceeded,
}

// errorMessage returns the message of the first client error kind err carries.
func errorMessage(err error) string {
	for _, kind := range clientErrors {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}

	return response.ServerError.Message
}

// messageForTag returns a user-friendly message based on the validation tag.
func messageForTag(tag string) string {
	switch tag {
	case "required":
		return "this field is required"
	case "max":
		return "value is too long"
	default:
		return "invalid value"
	}
}

func validationErrorResponse(err error) response.Error {
	var fieldErrs []response.FieldError

	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		for _, e := range errs {
			fieldErrs = append(fieldErrs, response.FieldError{
				Field:   e.Field(),
				Message: messageForTag(e.Tag()),
			})
		}
	}

	return response.NewError("validation error", fieldErrs...)
}
