// Package uuid wraps github.com/google/uuid with UUIDv7 (time-ordered) as the
// default. Domain and request identifiers throughout the service flow through
// this package so the version choice lives in one place.
package uuid

import (
	"github.com/google/uuid"
)

// UUID is aliased from github.com/google/uuid.UUID.
type UUID = uuid.UUID

// Nil is the zero UUID.
var Nil = uuid.Nil

// New returns a new random UUIDv7. Panics if generation fails.
func New() UUID {
	u, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return u
}

// NewRandom returns a new UUIDv7 and any error encountered during generation.
func NewRandom() (UUID, error) {
	return uuid.NewV7()
}

// Parse parses a UUID string into a UUID value.
func Parse(s string) (UUID, error) {
	return uuid.Parse(s)
}

// MustParse parses a UUID string and panics on invalid input.
func MustParse(s string) UUID {
	return uuid.MustParse(s)
}
