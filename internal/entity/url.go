// Package entity defines the entities and errors used in the application.
// It includes the URL struct, which represents a shortened URL, along with its
// visit statistics, and the error kinds shared by every storage backend.
package entity

import "time"

// URL represents a shortened URL.
type URL struct {
	ID          int64     // ID is the surrogate identifier assigned by the storage backend.
	ShortCode   string    // ShortCode is the generated code used to look the URL up.
	OriginalURL string    // OriginalURL is the canonical form of the URL the short code resolves to.
	Visits      int64     // Visits is the number of times the short code has been resolved.
	CreatedAt   time.Time // CreatedAt is the timestamp when the URL was persisted.
}

// Clone returns a copy of u that shares no state with it.
func (u *URL) Clone() *URL {
	if u == nil {
		return nil
	}

	c := *u
	return &c
}
