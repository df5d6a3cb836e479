package invoice

import (
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// IDFunc mints identifiers for line items and client records. A nil
// IDFunc uses NewID.
type IDFunc func() string

func (f IDFunc) next() string {
	if f == nil {
		return NewID()
	}
	return f()
}

// Next returns a fresh identifier.
func (f IDFunc) Next() string { return f.next() }

// NewID returns a random UUID. If the system random source fails it
// falls back to a timestamp and math/rand based id, so it never fails.
func NewID() string {
	id, err := uuid.NewRandom()
	if err == nil {
		return id.String()
	}
	return fallbackID(time.Now())
}

func fallbackID(now time.Time) string {
	return "id-" + strconv.FormatInt(rand.Int63(), 36) + strconv.FormatInt(now.UnixMilli(), 36)
}
