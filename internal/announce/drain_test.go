package announce

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"announceq/internal/transport"
)

func origin(chat int64) *transport.Origin {
	return &transport.Origin{Channel: "telegram", ChatID: chat}
}

func originKeyOf(t *testing.T, o *transport.Origin) string {
	t.Helper()
	k, ok := o.Key()
	if !ok {
		t.Fatalf("no key derivable for %+v", o)
	}
	return k
}

func TestCollectSingleChannelBatches(t *testing.T) {
	t.Parallel()
	r := testRegistry()
	c := &collector{}
	s := Settings{Mode: ModeCollect, Debounce: durPtr(40 * time.Millisecond)}

	for i, p := range []string{"first", "second", "third"} {
		r.Enqueue("batch", &Item{
			Prompt:     p,
			SessionKey: []string{"s1", "s2", "s3"}[i],
			Origin:     origin(42),
		}, s, c.send)
	}

	waitFor(t, 2*time.Second, func() bool { return r.Len() == 0 })

	sent := c.items()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1 combined", len(sent))
	}
	body := sent[0].Prompt
	for _, want := range []string{"first", "second", "third"} {
		if !strings.Contains(body, want) {
			t.Fatalf("combined body missing %q: %q", want, body)
		}
	}
	if strings.Index(body, "first") > strings.Index(body, "second") ||
		strings.Index(body, "second") > strings.Index(body, "third") {
		t.Fatalf("original order violated: %q", body)
	}
	if sent[0].SessionKey != "s3" {
		t.Fatalf("combined message should carry the last item's session, got %q", sent[0].SessionKey)
	}
}

func TestCollectCrossChannelSendsIndividually(t *testing.T) {
	t.Parallel()
	r := testRegistry()
	c := &collector{}
	s := Settings{Mode: ModeCollect, Debounce: durPtr(40 * time.Millisecond)}

	r.Enqueue("split", &Item{Prompt: "to-chat-1", Origin: origin(1)}, s, c.send)
	r.Enqueue("split", &Item{Prompt: "to-chat-2", Origin: origin(2)}, s, c.send)

	waitFor(t, 2*time.Second, func() bool { return r.Len() == 0 })

	sent := c.items()
	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want 2 individual", len(sent))
	}
	if sent[0].Prompt != "to-chat-1" || sent[1].Prompt != "to-chat-2" {
		t.Fatalf("bodies merged or reordered: %q, %q", sent[0].Prompt, sent[1].Prompt)
	}
}

// White-box: once a drain session is forced individual, it stays forced even
// when the remaining backlog re-converges on one channel.
func TestForcedIndividualIsSticky(t *testing.T) {
	t.Parallel()
	r := testRegistry()
	o1, o2 := origin(1), origin(2)
	k1, k2 := originKeyOf(t, o1), originKeyOf(t, o2)

	q := &queueState{
		key:        "sticky",
		mode:       ModeCollect,
		cap:        DefaultCap,
		dropPolicy: DropEvictSummarize,
		items: []*Item{
			{Prompt: "a", Origin: o1, OriginKey: k1},
			{Prompt: "b", Origin: o2, OriginKey: k2},
		},
	}

	r.mu.Lock()
	out, merged := r.nextOutgoingLocked(q)
	r.mu.Unlock()
	if merged != 1 || out.Prompt != "a" {
		t.Fatalf("cross-channel backlog must pop individually, got merged=%d body=%q", merged, out.Prompt)
	}
	if !q.forcedIndividual {
		t.Fatal("split detection should set forcedIndividual")
	}

	// Later arrivals all share one channel, but the session stays split.
	q.items = append(q.items,
		&Item{Prompt: "c", Origin: o2, OriginKey: k2},
	)
	r.mu.Lock()
	out, merged = r.nextOutgoingLocked(q)
	r.mu.Unlock()
	if merged != 1 || out.Prompt != "b" {
		t.Fatalf("sticky split violated: merged=%d body=%q", merged, out.Prompt)
	}
}

func TestSpansChannels(t *testing.T) {
	t.Parallel()
	o1, o2 := origin(1), origin(2)
	k1 := "telegram:1"
	k2 := "telegram:2"

	tests := []struct {
		name  string
		items []*Item
		want  bool
	}{
		{name: "empty", items: nil, want: false},
		{name: "single item", items: []*Item{{Origin: o1, OriginKey: k1}}, want: false},
		{name: "same channel", items: []*Item{
			{Origin: o1, OriginKey: k1}, {Origin: o1, OriginKey: k1},
		}, want: false},
		{name: "all surface-less", items: []*Item{{}, {}}, want: false},
		{name: "distinct keys", items: []*Item{
			{Origin: o1, OriginKey: k1}, {Origin: o2, OriginKey: k2},
		}, want: true},
		{name: "ambiguous origin without key", items: []*Item{
			{Origin: o1, OriginKey: k1}, {Origin: &transport.Origin{Channel: "telegram"}},
		}, want: true},
		{name: "mix bound and unbound", items: []*Item{
			{Origin: o1, OriginKey: k1}, {},
		}, want: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := spansChannels(tt.items); got != tt.want {
				t.Fatalf("spansChannels = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDebounceTrailingEdge(t *testing.T) {
	t.Parallel()
	r := testRegistry()
	c := &collector{}
	s := Settings{Debounce: durPtr(250 * time.Millisecond)}

	r.Enqueue("debounce", &Item{Prompt: "a"}, s, c.send)
	time.Sleep(100 * time.Millisecond)
	second := time.Now()
	r.Enqueue("debounce", &Item{Prompt: "b"}, s, c.send)

	waitFor(t, 3*time.Second, func() bool { return c.count() >= 1 })

	c.mu.Lock()
	first := c.at[0]
	c.mu.Unlock()
	if first.Before(second.Add(250 * time.Millisecond)) {
		t.Fatalf("first delivery at %v, want no earlier than %v (second enqueue + window)",
			first, second.Add(250*time.Millisecond))
	}
}

func TestZeroDebounceSendsImmediately(t *testing.T) {
	t.Parallel()
	r := testRegistry()
	c := &collector{}

	r.Enqueue("instant", &Item{Prompt: "x"}, Settings{Debounce: durPtr(0)}, c.send)
	waitFor(t, time.Second, func() bool { return c.count() == 1 })
}

func TestSendFailureContinuesLoop(t *testing.T) {
	t.Parallel()
	r := testRegistry()
	var attempts atomic.Int32
	send := func(context.Context, *Item) error {
		attempts.Add(1)
		return errors.New("boom")
	}
	s := Settings{Debounce: durPtr(20 * time.Millisecond)}

	r.Enqueue("failing", &Item{Prompt: "a"}, s, send)
	r.Enqueue("failing", &Item{Prompt: "b"}, s, send)

	// Both items are attempted and lost; the entry is cleaned up.
	waitFor(t, 2*time.Second, func() bool { return r.Len() == 0 })
	if got := attempts.Load(); got != 2 {
		t.Fatalf("attempts = %d, want 2 (one per item, no retry)", got)
	}
}

func TestSingleDrainLoopPerKey(t *testing.T) {
	t.Parallel()
	r := testRegistry()

	var inflight atomic.Int32
	var overlapped atomic.Bool
	send := func(context.Context, *Item) error {
		if inflight.Add(1) > 1 {
			overlapped.Store(true)
		}
		time.Sleep(10 * time.Millisecond)
		inflight.Add(-1)
		return nil
	}
	s := Settings{Debounce: durPtr(10 * time.Millisecond)}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Enqueue("one-loop", &Item{Prompt: "x"}, s, send)
		}()
	}
	wg.Wait()

	waitFor(t, 3*time.Second, func() bool { return r.Len() == 0 })
	if overlapped.Load() {
		t.Fatal("more than one send in flight for a single key")
	}
}

func TestLatestSendCallbackWins(t *testing.T) {
	t.Parallel()
	r := testRegistry()
	oldCalled := atomic.Bool{}
	newCalls := atomic.Int32{}

	oldSend := func(context.Context, *Item) error { oldCalled.Store(true); return nil }
	newSend := func(context.Context, *Item) error { newCalls.Add(1); return nil }
	s := Settings{Debounce: durPtr(60 * time.Millisecond)}

	r.Enqueue("swap", &Item{Prompt: "a"}, s, oldSend)
	// Re-enqueue inside the quiet window with a fresh callback.
	r.Enqueue("swap", &Item{Prompt: "b"}, s, newSend)

	waitFor(t, 2*time.Second, func() bool { return r.Len() == 0 })
	if oldCalled.Load() {
		t.Fatal("stale send callback used after replacement")
	}
	if newCalls.Load() != 2 {
		t.Fatalf("new callback calls = %d, want 2", newCalls.Load())
	}
}
