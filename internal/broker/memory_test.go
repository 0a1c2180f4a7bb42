package broker

import (
	"sync"
	"testing"

	"github.com/park285/cheese-arena/internal/match"
)

func snap(id string, n int) match.State {
	log := make([]string, n)
	return match.State{MatchID: id, Status: match.StatusActive, Log: log}
}

func TestMemoryDeliversInOrder(t *testing.T) {
	b := NewMemory(nil)
	var got []int
	unsub, err := b.Subscribe("AAAAAA", func(s match.State) { got = append(got, len(s.Log)) })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()
	for i := 1; i <= 5; i++ {
		b.Notify("AAAAAA", snap("AAAAAA", i))
	}
	b.Notify("BBBBBB", snap("BBBBBB", 99))
	if len(got) != 5 {
		t.Fatalf("got %v", got)
	}
	for i, n := range got {
		if n != i+1 {
			t.Fatalf("out of order: %v", got)
		}
	}
}

func TestMemoryUnsubscribeIdempotent(t *testing.T) {
	b := NewMemory(nil)
	calls := 0
	u1, _ := b.Subscribe("AAAAAA", func(match.State) { calls++ })
	u2, _ := b.Subscribe("AAAAAA", func(match.State) { calls++ })
	if n := b.Subscribers("AAAAAA"); n != 2 {
		t.Fatalf("subscribers = %d", n)
	}
	u1()
	u1()
	if n := b.Subscribers("AAAAAA"); n != 1 {
		t.Fatalf("after double unsubscribe: %d", n)
	}
	b.Notify("AAAAAA", snap("AAAAAA", 1))
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
	u2()
	b.mu.RLock()
	_, present := b.subs["AAAAAA"]
	b.mu.RUnlock()
	if present {
		t.Fatalf("empty subscriber set not deleted")
	}
}

func TestMemoryCopiesPerSubscriber(t *testing.T) {
	b := NewMemory(nil)
	var second match.State
	b.Subscribe("AAAAAA", func(s match.State) { s.Log[0] = "mutated" })
	b.Subscribe("AAAAAA", func(s match.State) { second = s })
	orig := match.State{MatchID: "AAAAAA", Log: []string{"line"}}
	b.Notify("AAAAAA", orig)
	if orig.Log[0] != "line" {
		t.Fatalf("notifier's state mutated")
	}
	// each callback gets its own clone, whatever order they run in
	if second.Log[0] != "line" {
		t.Fatalf("second subscriber saw %q", second.Log[0])
	}
}

func TestMemoryPanickingCallbackIsIsolated(t *testing.T) {
	b := NewMemory(nil)
	ok := false
	b.Subscribe("AAAAAA", func(match.State) { panic("boom") })
	b.Subscribe("AAAAAA", func(match.State) { ok = true })
	b.Notify("AAAAAA", snap("AAAAAA", 1))
	if !ok {
		t.Fatalf("healthy subscriber not called")
	}
}

func TestMemoryUnsubscribeDuringNotify(t *testing.T) {
	b := NewMemory(nil)
	var unsub func()
	calls := 0
	unsub, _ = b.Subscribe("AAAAAA", func(match.State) {
		calls++
		unsub()
	})
	b.Notify("AAAAAA", snap("AAAAAA", 1))
	b.Notify("AAAAAA", snap("AAAAAA", 2))
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestMemoryConcurrentSubscribe(t *testing.T) {
	b := NewMemory(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, _ := b.Subscribe("AAAAAA", func(match.State) {})
			b.Notify("AAAAAA", snap("AAAAAA", 1))
			u()
		}()
	}
	wg.Wait()
	if n := b.Subscribers("AAAAAA"); n != 0 {
		t.Fatalf("leaked %d subscribers", n)
	}
}
