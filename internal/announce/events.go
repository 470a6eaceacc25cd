package announce

import "time"

// Event types published on the bus. Data is always a QueueEvent.
const (
	EventQueued   = "announce.queued"
	EventRejected = "announce.rejected"
	EventEvicted  = "announce.evicted"
	EventSent     = "announce.sent"
	EventFailed   = "announce.failed"
)

// QueueEvent is the bus payload for pipeline events.
type QueueEvent struct {
	Key        string
	SessionKey string
	OriginKey  string
	// Items is the number of items involved: evicted count for
	// announce.evicted, merged count for a batched announce.sent.
	Items int
	At    time.Time
	Error string
}
