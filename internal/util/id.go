package util

import "github.com/google/uuid"

// NewID returns a fresh 128-bit opaque identifier.
func NewID() string {
	return uuid.NewString()
}
