package index

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval and delay so business logic is deterministic
// and fast in tests. After is used for retry backoff.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// IDGenerator abstracts unique ID generation so tests are deterministic.
// Used for job run identifiers.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
