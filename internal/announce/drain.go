package announce

import (
	"context"
	"errors"
	"time"

	logx "announceq/pkg/logx"
)

var errNoSendCallback = errors.New("announce: no send callback configured")

// drain empties q over time. Exactly one drain goroutine runs per key,
// enforced by the draining flag set in triggerLocked. It holds the registry
// lock only to read/mutate state; the two suspension points (debounce wait,
// send call) run unlocked, so a hung send stalls only this key.
//
// There is no cancellation: the loop runs until the backlog is exhausted,
// then deletes the registry entry.
func (r *Registry) drain(q *queueState) {
	for {
		r.awaitQuiet(q)

		r.mu.Lock()
		if len(q.items) == 0 {
			// Normally unreachable: every send path below consumes pending
			// drop bookkeeping along with items. A live dropPolicy change
			// away from summarize can strand a count here; drop it.
			if q.dropped > 0 {
				r.log.Debug("discarding stranded drop count",
					logx.String("key", q.key), logx.Int("dropped", q.dropped))
				q.dropped = 0
				q.summaries = nil
			}
			q.draining = false
			delete(r.queues, q.key)
			r.mu.Unlock()
			return
		}
		send := q.send
		out, merged := r.nextOutgoingLocked(q)
		key := q.key
		r.mu.Unlock()

		var err error
		if send == nil {
			err = errNoSendCallback
		} else {
			err = send(context.Background(), out)
		}
		if err != nil {
			// The popped item(s) are consumed regardless: no retry.
			r.log.Warn("announce send failed",
				logx.String("key", key),
				logx.String("session", out.SessionKey),
				logx.Err(err))
			r.publish(EventFailed, key, out, merged, err.Error())
		} else {
			r.publish(EventSent, key, out, merged, "")
		}

		r.mu.Lock()
		if len(q.items) == 0 && q.dropped == 0 {
			q.draining = false
			delete(r.queues, q.key)
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()
		// Backlog remains (or arrived mid-send); the next cycle re-waits
		// the debounce window against the latest enqueue.
	}
}

// nextOutgoingLocked pops what the current cycle should deliver and returns
// the outgoing item plus the number of merged originals (1 for a single).
//
// Collect mode batches the whole backlog into one message unless the
// pending set spans delivery surfaces. Once a split is detected the session
// stays forced-individual until the backlog empties, even if later arrivals
// would all share one surface again.
func (r *Registry) nextOutgoingLocked(q *queueState) (*Item, int) {
	if q.mode == ModeCollect {
		if !q.forcedIndividual && spansChannels(q.items) {
			q.forcedIndividual = true
		}
		if !q.forcedIndividual {
			batch := q.items
			q.items = nil
			return mergeBatch(q.takeOverflowSummary(), batch), len(batch)
		}
	}

	it := q.items[0]
	q.items = q.items[1:]
	// A pending overflow summary supersedes the item's own body, so the
	// drop bookkeeping is consumed on every send path.
	if summary := q.takeOverflowSummary(); summary != "" {
		cp := *it
		cp.Prompt = summary
		return &cp, 1
	}
	return it, 1
}

// awaitQuiet blocks until at least the queue's debounce window has elapsed
// since the last enqueue. Trailing-edge: each re-check reads the latest
// lastEnqueuedAt, so a burst keeps extending the wait until arrivals stop
// for the full window.
func (r *Registry) awaitQuiet(q *queueState) {
	for {
		r.mu.Lock()
		d := q.debounce
		last := q.lastEnqueuedAt
		r.mu.Unlock()

		if d <= 0 {
			return
		}
		rest := d - time.Since(last)
		if rest <= 0 {
			return
		}
		time.Sleep(rest)
	}
}

// spansChannels reports whether the pending set must not be merged into a
// single message: it straddles two distinct delivery surfaces, contains a
// surface-bound item whose identity could not be derived (ambiguous, treat
// conservatively), or mixes surface-bound and surface-less items.
func spansChannels(items []*Item) bool {
	if len(items) < 2 {
		return false
	}
	var (
		withOrigin    int
		withoutOrigin int
		ambiguous     bool
		first         string
		distinct      bool
	)
	for _, it := range items {
		if it.Origin == nil {
			withoutOrigin++
			continue
		}
		withOrigin++
		if it.OriginKey == "" {
			ambiguous = true
			continue
		}
		if first == "" {
			first = it.OriginKey
		} else if it.OriginKey != first {
			distinct = true
		}
	}
	if distinct {
		return true
	}
	if ambiguous {
		return true
	}
	return withOrigin > 0 && withoutOrigin > 0
}
