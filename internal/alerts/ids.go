package alerts

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator mints alert identifiers.
type IDGenerator interface {
	NextID() string
}

// CounterIDs yields alert-1, alert-2, ... from a counter owned by the instance.
type CounterIDs struct {
	n atomic.Uint64
}

// NewCounterIDs returns a counter starting at alert-1.
func NewCounterIDs() *CounterIDs { return &CounterIDs{} }

func (c *CounterIDs) NextID() string {
	return "alert-" + strconv.FormatUint(c.n.Add(1), 10)
}

// UUIDIDs yields random alert-<uuid> identifiers.
type UUIDIDs struct{}

func (UUIDIDs) NextID() string {
	return "alert-" + uuid.NewString()
}

// NewIDGenerator picks a generator by scheme name: "counter" (default) or "uuid".
func NewIDGenerator(scheme string) IDGenerator {
	if scheme == "uuid" {
		return UUIDIDs{}
	}
	return NewCounterIDs()
}
