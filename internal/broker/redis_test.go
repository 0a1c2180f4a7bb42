package broker

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	b := NewRedis(rdb, nil)
	t.Cleanup(func() { _ = b.Close() })
	return b, mr
}

func recv(t *testing.T, ch <-chan match.State) match.State {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}
	return match.State{}
}

func TestRedisRoundTrip(t *testing.T) {
	b, _ := newTestRedis(t)
	ch := make(chan match.State, 8)
	unsub, err := b.Subscribe("AAAAAA", func(s match.State) { ch <- s })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	p2 := match.PlayerSlot{Name: "Bob", HP: 25}
	w := match.P1
	sent := match.State{
		MatchID: "AAAAAA",
		Status:  match.StatusFinished,
		Players: match.Players{P1: match.PlayerSlot{Name: "Alice", HP: 30}, P2: &p2},
		Turn:    match.P2,
		Log:     []string{"a", "b"},
		Winner:  &w,
	}
	for i := 0; i < 3; i++ {
		s := sent.Clone()
		s.Players.P1.Block = i
		b.Notify("AAAAAA", s)
	}
	for i := 0; i < 3; i++ {
		got := recv(t, ch)
		if got.Players.P1.Block != i {
			t.Fatalf("message %d out of order: %+v", i, got.Players.P1)
		}
		if got.Players.P2 == nil || got.Players.P2.HP != 25 || got.Winner == nil || *got.Winner != match.P1 {
			t.Fatalf("decoded = %+v", got)
		}
	}
}

func TestRedisChannelName(t *testing.T) {
	b, mr := newTestRedis(t)
	unsub, err := b.Subscribe("BBBBBB", func(match.State) {})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	chans := mr.PubSubChannels("match:*")
	if len(chans) != 1 || chans[0] != "match:BBBBBB" {
		t.Fatalf("channels = %v", chans)
	}
	unsub()
	unsub()
	deadline := time.Now().Add(2 * time.Second)
	for len(mr.PubSubChannels("match:*")) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscription not released")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRedisUnsubscribeStopsDelivery(t *testing.T) {
	b, _ := newTestRedis(t)
	ch := make(chan match.State, 8)
	unsub, _ := b.Subscribe("AAAAAA", func(s match.State) { ch <- s })
	b.Notify("AAAAAA", snap("AAAAAA", 1))
	recv(t, ch)
	unsub()
	b.Notify("AAAAAA", snap("AAAAAA", 2))
	select {
	case s := <-ch:
		t.Fatalf("delivered after unsubscribe: %+v", s)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRedisClose(t *testing.T) {
	b, _ := newTestRedis(t)
	if _, err := b.Subscribe("AAAAAA", func(match.State) {}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := b.Subscribe("AAAAAA", func(match.State) {}); err != ErrClosed {
		t.Fatalf("subscribe after close: %v", err)
	}
}

func TestRedisNotifyToleratesOutage(t *testing.T) {
	b, mr := newTestRedis(t)
	mr.Close()
	// must return without panicking or blocking past the publish timeout
	done := make(chan struct{})
	go func() {
		b.Notify("AAAAAA", snap("AAAAAA", 1))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Notify blocked")
	}
}

func TestDial(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	b, err := Dial(context.Background(), "redis://"+mr.Addr()+"/0", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := Dial(context.Background(), "http://"+mr.Addr(), nil); err == nil {
		t.Fatalf("expected scheme error")
	}
}

func TestParseRedisURL(t *testing.T) {
	o, err := parseRedisURL("rediss://user:pw@cache:6380/2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if o.Addr != "cache:6380" || o.Username != "user" || o.Password != "pw" || o.DB != 2 || o.TLSConfig == nil {
		t.Fatalf("opts = %+v", o)
	}
	for _, bad := range []string{"", "redis://", "redis://h:1/x", "tcp://h:1"} {
		if _, err := parseRedisURL(bad); err == nil {
			t.Fatalf("parseRedisURL(%q) accepted", bad)
		}
	}
}
