package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "announceq/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q): %v", driver, err)
		}
		if st != nil {
			t.Fatalf("Open(%q) should return a nil store", driver)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestDeliveryJournalRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "journal.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	entries := []DeliveryEntry{
		{Key: "room-a", SessionKey: "s1", OriginKey: "telegram:1", Event: "announce.sent", Items: 3},
		{Key: "room-a", Event: "announce.failed", Items: 1, Error: "boom"},
		{Key: "room-b", Event: "announce.evicted", Items: 2},
	}
	for _, e := range entries {
		if err := st.AppendDelivery(ctx, e); err != nil {
			t.Fatalf("AppendDelivery: %v", err)
		}
	}

	got, err := st.RecentDeliveries(ctx, 10)
	if err != nil {
		t.Fatalf("RecentDeliveries: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	// Newest first.
	if got[0].Key != "room-b" || got[0].Event != "announce.evicted" {
		t.Fatalf("unexpected newest entry: %+v", got[0])
	}
	if got[1].Error != "boom" {
		t.Fatalf("error column lost: %+v", got[1])
	}
	if got[2].SessionKey != "s1" || got[2].OriginKey != "telegram:1" || got[2].Items != 3 {
		t.Fatalf("columns lost: %+v", got[2])
	}
	if got[2].At.IsZero() {
		t.Fatal("timestamp not persisted")
	}
}

func TestRecentDeliveriesLimit(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "journal.db")
	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := st.AppendDelivery(ctx, DeliveryEntry{Key: "k", Event: "announce.sent"}); err != nil {
			t.Fatalf("AppendDelivery: %v", err)
		}
	}
	got, err := st.RecentDeliveries(ctx, 2)
	if err != nil {
		t.Fatalf("RecentDeliveries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
}
