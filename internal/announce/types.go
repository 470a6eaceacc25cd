package announce

import (
	"context"
	"time"

	"announceq/internal/transport"
)

// Mode selects how a key's backlog is delivered.
type Mode string

const (
	// ModeIndividual sends exactly one item per outgoing message.
	ModeIndividual Mode = "individual"
	// ModeCollect merges the pending backlog into one outgoing message,
	// as long as every pending item targets the same delivery surface.
	ModeCollect Mode = "collect"
)

func normalizeMode(m Mode) Mode {
	if m == ModeCollect {
		return ModeCollect
	}
	return ModeIndividual
}

// DropPolicy selects what happens when a key's backlog is at capacity and
// another item arrives.
type DropPolicy string

const (
	// DropRejectNew refuses the new item and keeps the backlog.
	DropRejectNew DropPolicy = "reject-new"
	// DropEvictOldest silently discards the oldest items to make room.
	DropEvictOldest DropPolicy = "evict-oldest"
	// DropEvictSummarize discards the oldest items but keeps a one-line
	// summary of each, delivered with the next outgoing message.
	DropEvictSummarize DropPolicy = "evict-oldest-and-summarize"
)

func (p DropPolicy) valid() bool {
	switch p {
	case DropRejectNew, DropEvictOldest, DropEvictSummarize:
		return true
	}
	return false
}

// Item is one announce message.
//
// Items are owned by the registry once enqueued. Prompt may be rewritten
// before delivery (overflow summary substitution, batch merging); everything
// else is treated as immutable.
type Item struct {
	// Prompt is the message body.
	Prompt string
	// SummaryLine is an optional short label preferred over Prompt when
	// building overflow summaries.
	SummaryLine string
	EnqueuedAt  time.Time
	// SessionKey identifies the producing session, opaque to the pipeline.
	SessionKey string
	// Origin describes the delivery surface this item targets (nil when the
	// item has no surface binding of its own).
	Origin *transport.Origin
	// OriginKey is derived from Origin at enqueue time and used for
	// equality comparisons; empty when no identity could be derived.
	OriginKey string
}

// label returns the text an overflow summary line is built from.
func (it *Item) label() string {
	if it.SummaryLine != "" {
		return it.SummaryLine
	}
	return it.Prompt
}

// SendFunc delivers one fully-formed item. The most recently supplied
// callback for a key is always the one used, even mid-drain. Errors are
// logged, never propagated to the enqueue caller; the item is lost.
type SendFunc func(ctx context.Context, it *Item) error

// Settings carries per-enqueue configuration for a key. Nil/empty fields
// mean "keep the current (or default) value"; Mode is always applied.
type Settings struct {
	Mode Mode
	// Debounce is the quiet window required since the last enqueue before
	// a drain cycle may send. Negative values clamp to 0.
	Debounce *time.Duration
	// Cap is the backlog capacity. Values < 1 are ignored.
	Cap *int
	DropPolicy DropPolicy
}

// Queue defaults, applied on first enqueue for a key.
const (
	DefaultDebounce = time.Second
	DefaultCap      = 20
)

const DefaultDropPolicy = DropEvictSummarize
