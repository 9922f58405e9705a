package cart

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator produces cart line identifiers. Ids must be unique within one
// engine's lifetime.
type IDGenerator interface {
	NextID() string
}

// Sequence is a monotonic counter producing "line-1", "line-2", ...
// The zero value is ready to use.
type Sequence struct {
	n atomic.Uint64
}

// NextID returns the next id in the sequence.
func (s *Sequence) NextID() string {
	return "line-" + strconv.FormatUint(s.n.Add(1), 10)
}

// UUIDs generates random UUID v4 line ids.
type UUIDs struct{}

// NextID returns a new UUID string.
func (UUIDs) NextID() string {
	return uuid.New().String()
}
