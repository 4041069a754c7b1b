package events

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSubscribeReceivesTypedPayload(t *testing.T) {
	bus := NewBus()
	defer Complete(bus)

	got := make(chan MenuChanged, 1)
	Subscribe(bus, TopicMenuChanged, func(_ context.Context, m MenuChanged) error {
		got <- m
		return nil
	})

	want := MenuChanged{MenuID: "main", Previous: "pause", At: time.Now()}
	if err := Emit(bus, TopicMenuChanged, want); err != nil {
		t.Fatalf("emit: %v", err)
	}

	select {
	case m := <-got:
		if m.MenuID != "main" || m.Previous != "pause" {
			t.Fatalf("payload = %+v, want %+v", m, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(WithSyncDelivery())
	defer Complete(bus)

	var mu sync.Mutex
	count := 0
	sub := Subscribe(bus, TopicAnnouncement, func(_ context.Context, _ Announcement) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	if err := Emit(bus, TopicAnnouncement, Announcement{Text: "one"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})

	sub.Unsubscribe()
	if err := Emit(bus, TopicAnnouncement, Announcement{Text: "two"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("count = %d after unsubscribe, want 1", count)
	}
}

func TestTypeMismatchDoesNotPanic(t *testing.T) {
	bus := NewBus(WithSyncDelivery())
	defer Complete(bus)

	ran := make(chan struct{}, 1)
	Subscribe(bus, "mixed", func(_ context.Context, _ FocusChanged) error {
		t.Error("typed handler ran for wrong payload type")
		return nil
	})
	Subscribe(bus, "mixed", func(_ context.Context, _ string) error {
		ran <- struct{}{}
		return nil
	})

	if err := Emit(bus, "mixed", "just a string"); err != nil {
		t.Fatalf("emit: %v", err)
	}
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("string handler never ran")
	}
}

func TestSyncDeliveryPreservesOrder(t *testing.T) {
	bus := NewBus(WithSyncDelivery())
	defer Complete(bus)

	var mu sync.Mutex
	var seen []string
	Subscribe(bus, TopicAnnouncement, func(_ context.Context, a Announcement) error {
		mu.Lock()
		seen = append(seen, a.Text)
		mu.Unlock()
		return nil
	})

	for _, text := range []string{"a", "b", "c", "d"} {
		if err := Emit(bus, TopicAnnouncement, Announcement{Text: text}); err != nil {
			t.Fatalf("emit %q: %v", text, err)
		}
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 4
	})
	mu.Lock()
	defer mu.Unlock()
	for i, want := range []string{"a", "b", "c", "d"} {
		if seen[i] != want {
			t.Fatalf("seen = %v, want ordered a b c d", seen)
		}
	}
}

func TestEmitAfterCompleteFails(t *testing.T) {
	bus := NewBus()
	Complete(bus)
	Complete(bus) // idempotent

	if err := Emit(bus, TopicMenuChanged, MenuChanged{MenuID: "main"}); err == nil {
		t.Fatal("emit on completed bus succeeded, want error")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}
