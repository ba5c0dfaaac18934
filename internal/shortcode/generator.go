// Package shortcode generates random short codes for shortened URLs.
// Generators only sample codes; uniqueness is enforced by the storage backend.
package shortcode

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// Alphabet is the set of characters short codes are drawn from.
	Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	MinLength     = 6
	MaxLength     = 10
	DefaultLength = 10
)

// reserved holds the top-level route segments a short code must not take,
// since the static route would shadow its redirect.
var reserved = map[string]struct{}{
	"api":     {},
	"docs":    {},
	"health":  {},
	"metrics": {},
	"swagger": {},
}

// IsReserved reports whether code collides with a static top-level route.
func IsReserved(code string) bool {
	_, ok := reserved[code]
	return ok
}

// Generator produces candidate short codes.
// Implementations must be safe for concurrent use.
type Generator interface {
	Generate() (string, error)
}

// NanoID generates fixed-length codes uniformly from Alphabet.
type NanoID struct {
	length int
}

// NewNanoID returns a generator producing codes of the given length.
func NewNanoID(length int) (*NanoID, error) {
	const op = "shortcode.NewNanoID"

	if length < MinLength || length > MaxLength {
		return nil, fmt.Errorf("%s: length must be between %d and %d, got %d", op, MinLength, MaxLength, length)
	}

	return &NanoID{length: length}, nil
}

// Generate returns a new random short code.
func (g *NanoID) Generate() (string, error) {
	const op = "shortcode.NanoID.Generate"

	code, err := gonanoid.Generate(Alphabet, g.length)
	if err != nil {
		return "", fmt.Errorf("%s: failed to generate short code: %w", op, err)
	}

	return code, nil
}
