package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/park285/cheese-arena/internal/match"
)

var (
	// ErrLagging means the client fell more than a mailbox behind and is being shed.
	ErrLagging = errors.New("stream lagging")
	ErrClosed  = errors.New("stream closed")
)

const DefaultBuffer = 16

// Watcher is the registry surface a stream needs.
type Watcher interface {
	Watch(matchID string, fn func(match.State)) (match.State, func(), error)
}

type StreamState int32

const (
	StateConnecting StreamState = iota
	StateStreaming
	StateClosed
)

func (s StreamState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stream is one client's view of a match: the snapshot at connect time, then every later commit in order.
// The broker callback never blocks; if the mailbox is full the stream is marked lagging instead.
type Stream struct {
	matchID string
	initial *match.State
	mailbox chan match.State
	lagged  chan struct{}
	done    chan struct{}
	unsub   func()

	state     atomic.Int32
	lagOnce   sync.Once
	closeOnce sync.Once
}

// Open subscribes to matchID. It fails with match.ErrNotFound, without subscribing, if the match is absent.
func Open(w Watcher, matchID string, buffer int) (*Stream, error) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &Stream{
		matchID: matchID,
		mailbox: make(chan match.State, buffer),
		lagged:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	initial, unsub, err := w.Watch(matchID, s.enqueue)
	if err != nil {
		s.state.Store(int32(StateClosed))
		close(s.done)
		return nil, err
	}
	s.initial = &initial
	s.unsub = unsub
	return s, nil
}

func (s *Stream) MatchID() string { return s.matchID }

func (s *Stream) State() StreamState { return StreamState(s.state.Load()) }

func (s *Stream) enqueue(st match.State) {
	select {
	case <-s.done:
		return
	case <-s.lagged:
		return
	default:
	}
	select {
	case s.mailbox <- st:
	default:
		s.lagOnce.Do(func() { close(s.lagged) })
	}
}

// Next returns the initial snapshot on the first call and queued snapshots afterwards.
// It is meant for a single reader goroutine.
func (s *Stream) Next(ctx context.Context) (match.State, error) {
	if s.initial != nil {
		st := *s.initial
		s.initial = nil
		s.state.CompareAndSwap(int32(StateConnecting), int32(StateStreaming))
		return st, nil
	}
	select {
	case <-s.done:
		return match.State{}, ErrClosed
	case <-s.lagged:
		return match.State{}, ErrLagging
	default:
	}
	select {
	case st := <-s.mailbox:
		return st, nil
	case <-s.lagged:
		return match.State{}, ErrLagging
	case <-s.done:
		return match.State{}, ErrClosed
	case <-ctx.Done():
		return match.State{}, ctx.Err()
	}
}

// Close unsubscribes exactly once. Safe to call from any goroutine.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		if s.unsub != nil {
			s.unsub()
		}
		close(s.done)
	})
}
