package util

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var lastJobID atomic.Int64

// NewJobID returns the creation timestamp in Unix milliseconds as a decimal string.
// IDs are strictly increasing within the process, so two jobs created in the same
// millisecond still get disjoint artifact and temp file names.
func NewJobID(now time.Time) string {
	ms := now.UnixMilli()
	for {
		prev := lastJobID.Load()
		next := ms
		if next <= prev {
			next = prev + 1
		}
		if lastJobID.CompareAndSwap(prev, next) {
			return strconv.FormatInt(next, 10)
		}
	}
}

// NewRequestID returns a random UUIDv4 string for request correlation.
func NewRequestID() string {
	return uuid.NewString()
}
