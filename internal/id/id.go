package id

import "github.com/google/uuid"

// New returns a short opaque identifier for job records. Eight hex chars
// keep a local progress directory readable and collision-free in practice.
func New() string {
	return uuid.NewString()[:8]
}
