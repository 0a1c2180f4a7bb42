package janitor

import (
	"sync"
	"testing"
	"time"

	"github.com/park285/cheese-arena/internal/combat"
	"github.com/park285/cheese-arena/internal/match"
)

type countingSweeper struct {
	mu    sync.Mutex
	calls int
}

func (c *countingSweeper) Sweep(time.Time, time.Duration, time.Duration) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil
}

func (c *countingSweeper) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestStartDisabled(t *testing.T) {
	j, err := Start(&countingSweeper{}, Config{Interval: time.Second}, nil)
	if err != nil || j != nil {
		t.Fatalf("Start = %v, %v; want nil, nil", j, err)
	}
	// nil janitor is inert
	if err := j.Stop(); err != nil {
		t.Fatalf("Stop on nil: %v", err)
	}
	if got := j.RunOnce(); got != nil {
		t.Fatalf("RunOnce on nil = %v", got)
	}
}

func TestStartRejectsBadInterval(t *testing.T) {
	if _, err := Start(&countingSweeper{}, Config{IdleTTL: time.Minute}, nil); err == nil {
		t.Fatalf("expected error for zero interval")
	}
}

func TestScheduledSweepRuns(t *testing.T) {
	s := &countingSweeper{}
	j, err := Start(s, Config{Interval: 20 * time.Millisecond, IdleTTL: time.Hour}, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer j.Stop()
	deadline := time.Now().Add(2 * time.Second)
	for s.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("sweep ran %d times", s.count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRunOnceRemovesFinishedMatches(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	reg := match.NewRegistry(match.WithClock(func() time.Time { return now }))
	done, _ := reg.CreateMatch("Alice")
	reg.JoinMatch(done.MatchID, "Bob")
	for {
		st, _ := reg.GetMatch(done.MatchID)
		if st.Status == match.StatusFinished {
			break
		}
		if _, err := reg.ApplyAction(done.MatchID, st.Turn, combat.Kick); err != nil {
			t.Fatalf("kick: %v", err)
		}
	}
	open, _ := reg.CreateMatch("Carol")

	j, err := Start(reg, Config{Interval: time.Hour, FinishedTTL: time.Minute}, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer j.Stop()
	j.now = func() time.Time { return now.Add(2 * time.Minute) }

	removed := j.RunOnce()
	if len(removed) != 1 || removed[0] != done.MatchID {
		t.Fatalf("removed = %v", removed)
	}
	if _, ok := reg.GetMatch(open.MatchID); !ok {
		t.Fatalf("waiting match was swept")
	}
}
