package broker

import (
	"sync"

	"github.com/google/uuid"
	"github.com/park285/cheese-arena/internal/match"
	"go.uber.org/zap"
)

// Broker is a match.Publisher that owns resources.
type Broker interface {
	match.Publisher
	Close() error
}

// Memory delivers snapshots to in-process subscribers, synchronously in the notifier's goroutine.
type Memory struct {
	mu     sync.RWMutex
	subs   map[string]map[string]func(match.State)
	logger *zap.Logger
}

func NewMemory(logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{subs: make(map[string]map[string]func(match.State)), logger: logger}
}

func (m *Memory) Subscribe(matchID string, fn func(match.State)) (func(), error) {
	sid := uuid.NewString()
	m.mu.Lock()
	set, ok := m.subs[matchID]
	if !ok {
		set = make(map[string]func(match.State))
		m.subs[matchID] = set
	}
	set[sid] = fn
	m.mu.Unlock()
	m.logger.Debug("broker_subscribe", zap.String("match_id", matchID), zap.String("sub_id", sid))

	var once sync.Once
	return func() {
		once.Do(func() { m.remove(matchID, sid) })
	}, nil
}

func (m *Memory) remove(matchID, sid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.subs[matchID]
	if !ok {
		return
	}
	delete(set, sid)
	if len(set) == 0 {
		delete(m.subs, matchID)
	}
	m.logger.Debug("broker_unsubscribe", zap.String("match_id", matchID), zap.String("sub_id", sid))
}

// Notify calls every subscriber of matchID with its own copy of state.
// A panicking callback is logged and skipped; the rest still run.
func (m *Memory) Notify(matchID string, state match.State) {
	m.mu.RLock()
	set := m.subs[matchID]
	fns := make([]func(match.State), 0, len(set))
	for _, fn := range set {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		m.deliver(matchID, fn, state.Clone())
	}
}

func (m *Memory) deliver(matchID string, fn func(match.State), st match.State) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("broker_callback_panic", zap.String("match_id", matchID), zap.Any("panic", r))
		}
	}()
	fn(st)
}

// Subscribers reports how many callbacks are registered for matchID.
func (m *Memory) Subscribers(matchID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[matchID])
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.subs = make(map[string]map[string]func(match.State))
	m.mu.Unlock()
	return nil
}
