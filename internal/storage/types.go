package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the delivery journal.
//
// Driver values:
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// DeliveryEntry records one pipeline event for a key: an outgoing send, a
// failed send, a rejection, or an eviction batch.
// Keep it compact and schema-stable.
type DeliveryEntry struct {
	At         time.Time
	Key        string
	SessionKey string
	OriginKey  string
	Event      string
	Items      int
	Error      string
}
