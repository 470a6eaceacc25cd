package transport

import (
	"context"
	"strconv"
)

// Origin describes the delivery surface an announce targets: which channel
// kind (e.g. "telegram") and which addressable conversation on it.
type Origin struct {
	Channel  string
	ChatID   int64
	ThreadID int // forum topic thread id (0 if none)
}

// Key derives a stable identity string for an origin, used to detect when a
// set of pending announces straddles more than one delivery surface.
// ok is false when the origin carries no addressable target, i.e. no usable
// identity can be derived from it.
func (o *Origin) Key() (key string, ok bool) {
	if o == nil || o.ChatID == 0 {
		return "", false
	}
	ch := o.Channel
	if ch == "" {
		ch = "telegram"
	}
	key = ch + ":" + strconv.FormatInt(o.ChatID, 10)
	if o.ThreadID != 0 {
		key += ":" + strconv.Itoa(o.ThreadID)
	}
	return key, true
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

// Adapter is the outbound half of a delivery surface.
type Adapter interface {
	SendText(ctx context.Context, to Origin, text string, opt *SendOptions) (MessageRef, error)
}
