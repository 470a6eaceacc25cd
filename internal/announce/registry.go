package announce

import (
	"sort"
	"sync"
	"time"

	"announceq/internal/eventbus"
	"announceq/internal/transport"
	logx "announceq/pkg/logx"
)

// queueState is the per-key record. All fields are guarded by Registry.mu;
// draining is a mutual-exclusion flag (at most one drain goroutine per key),
// not a lock.
type queueState struct {
	key string

	items          []*Item
	draining       bool
	lastEnqueuedAt time.Time

	mode       Mode
	debounce   time.Duration
	cap        int
	dropPolicy DropPolicy

	// Overflow bookkeeping for DropEvictSummarize: dropped counts evictions
	// since the last delivered summary, summaries holds one elided line per
	// eviction (bounded to cap entries, oldest trimmed first).
	dropped   int
	summaries []string

	// send is the most recently supplied callback, re-read every cycle so a
	// mid-drain enqueue can swap it.
	send SendFunc

	// forcedIndividual is the sticky cross-channel flag for the current
	// drain session. Reset exactly once at each idle->draining transition.
	forcedIndividual bool
}

// Options configures a Registry. The origin hooks are pure functions
// supplied by the host; both have surface-generic defaults.
type Options struct {
	Log logx.Logger
	Bus eventbus.Bus

	// NormalizeOrigin canonicalizes an item's origin before it is queued.
	NormalizeOrigin func(*transport.Origin) *transport.Origin
	// OriginKey derives an identity string for an origin; ok=false means
	// no identity could be derived.
	OriginKey func(*transport.Origin) (string, bool)
}

// Registry maps keys to queue state. Entries are created on first enqueue,
// live-reconfigured on every subsequent enqueue, and removed once a drain
// pass leaves nothing pending.
//
// It is safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	queues map[string]*queueState

	log logx.Logger
	bus eventbus.Bus

	normalizeOrigin func(*transport.Origin) *transport.Origin
	originKey       func(*transport.Origin) (string, bool)
}

func New(opts Options) *Registry {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	norm := opts.NormalizeOrigin
	if norm == nil {
		norm = defaultNormalizeOrigin
	}
	derive := opts.OriginKey
	if derive == nil {
		derive = (*transport.Origin).Key
	}
	return &Registry{
		queues:          map[string]*queueState{},
		log:             log,
		bus:             opts.Bus,
		normalizeOrigin: norm,
		originKey:       derive,
	}
}

func defaultNormalizeOrigin(o *transport.Origin) *transport.Origin {
	if o == nil {
		return nil
	}
	cp := *o
	if cp.Channel == "" {
		cp.Channel = "telegram"
	}
	return &cp
}

// Enqueue submits an item for the given key and reports whether it was
// queued. false means the backlog was at capacity under DropRejectNew; the
// backlog itself is still scheduled for draining. true means the new item
// was queued, which does not guarantee older items survived eviction.
//
// Enqueue never blocks on I/O and never returns an error: send failures are
// logged from the drain loop, invalid settings are clamped.
func (r *Registry) Enqueue(key string, it *Item, s Settings, send SendFunc) bool {
	now := time.Now()

	r.mu.Lock()
	q := r.getOrCreateLocked(key, s, send)
	// Even a rejected enqueue extends the quiet window.
	q.lastEnqueuedAt = now

	evictedCount := 0
	if len(q.items) >= q.cap {
		if q.dropPolicy == DropRejectNew {
			r.triggerLocked(q)
			r.mu.Unlock()
			r.publish(EventRejected, key, it, 0, "")
			return false
		}

		drop := len(q.items) - q.cap + 1
		evicted := q.items[:drop]
		q.items = q.items[drop:]
		if q.dropPolicy == DropEvictSummarize {
			for _, old := range evicted {
				q.dropped++
				q.summaries = append(q.summaries, elideText(old.label()))
			}
			if over := len(q.summaries) - q.cap; over > 0 {
				q.summaries = q.summaries[over:]
			}
		}
		evictedCount = drop
	}

	if it.EnqueuedAt.IsZero() {
		it.EnqueuedAt = now
	}
	it.Origin = r.normalizeOrigin(it.Origin)
	if k, ok := r.originKey(it.Origin); ok {
		it.OriginKey = k
	} else {
		it.OriginKey = ""
	}

	q.items = append(q.items, it)
	r.triggerLocked(q)
	r.mu.Unlock()

	if evictedCount > 0 {
		r.publish(EventEvicted, key, it, evictedCount, "")
	}
	r.publish(EventQueued, key, it, 0, "")
	return true
}

// getOrCreateLocked resolves the queue state for key, merging settings in
// place: mode and send always win, the rest only when validly supplied.
func (r *Registry) getOrCreateLocked(key string, s Settings, send SendFunc) *queueState {
	q, ok := r.queues[key]
	if !ok {
		q = &queueState{
			key:        key,
			debounce:   DefaultDebounce,
			cap:        DefaultCap,
			dropPolicy: DefaultDropPolicy,
		}
		r.queues[key] = q
	}

	q.mode = normalizeMode(s.Mode)
	if s.Debounce != nil {
		d := *s.Debounce
		if d < 0 {
			d = 0
		}
		q.debounce = d
	}
	if s.Cap != nil && *s.Cap >= 1 {
		q.cap = *s.Cap
	}
	if s.DropPolicy.valid() {
		q.dropPolicy = s.DropPolicy
	}
	if send != nil {
		q.send = send
	}
	return q
}

// triggerLocked starts a drain session for q unless one is already running.
// Re-entrant triggers while draining are safe no-ops.
func (r *Registry) triggerLocked(q *queueState) {
	if q.draining {
		return
	}
	q.draining = true
	q.forcedIndividual = false
	go r.drain(q)
}

func (r *Registry) publish(typ, key string, it *Item, items int, errStr string) {
	if r.bus == nil {
		return
	}
	ev := QueueEvent{Key: key, Items: items, At: time.Now(), Error: errStr}
	if it != nil {
		ev.SessionKey = it.SessionKey
		ev.OriginKey = it.OriginKey
	}
	r.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

// QueueStat is a point-in-time view of one key's backlog.
type QueueStat struct {
	Key      string
	Pending  int
	Dropped  int
	Draining bool
	Mode     Mode
}

// Snapshot returns per-key stats sorted by key.
func (r *Registry) Snapshot() []QueueStat {
	r.mu.Lock()
	out := make([]QueueStat, 0, len(r.queues))
	for k, q := range r.queues {
		out = append(out, QueueStat{
			Key:      k,
			Pending:  len(q.items),
			Dropped:  q.dropped,
			Draining: q.draining,
			Mode:     q.mode,
		})
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len reports the number of live keys.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queues)
}
