// Package response defines the JSON envelopes shared by HTTP handlers and middleware.
package response

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// FieldError describes why a single request field was rejected.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the body of every non-2xx response.
type Error struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
}

var (
	EmptyRequestBody   = NewError("empty request body")
	InvalidRequestBody = NewError("invalid request body")
	ServerError        = NewError("server error occurred")
)

func NewError(msg string, fieldErrs ...FieldError) Error {
	return Error{
		Status:  StatusError,
		Message: msg,
		Errors:  fieldErrs,
	}
}

// Health is the body of the liveness probe.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func NewHealth(version string) Health {
	return Health{
		Status:  StatusOK,
		Version: version,
	}
}
