package match

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-arena/internal/combat"
	"go.uber.org/zap"
)

// Publisher fans committed snapshots out to subscribers of one match.
// Notify is called with the match lock held, so implementations must not block.
// Subscribe is also called with the match lock held, so Watch can pair it with a snapshot; a
// networked Publisher's round trip there delays commits on that match, never on others.
type Publisher interface {
	Subscribe(matchID string, fn func(State)) (func(), error)
	Notify(matchID string, state State)
}

// Narrator renders the human-readable log lines appended to a match.
type Narrator interface {
	Created(host string) string
	Joined(guest, host string) string
	Action(attacker, defender string, ev combat.Event) string
	Winner(name string) string
}

const maxCodeAttempts = 8

type entry struct {
	mu      sync.Mutex
	state   State
	touched time.Time
	removed bool
}

// Registry owns every live match. Mutations of one match are serialized by that match's lock;
// different matches only contend on the brief map lookup.
type Registry struct {
	mu      sync.RWMutex
	matches map[string]*entry

	pub      Publisher
	narrator Narrator
	logger   *zap.Logger
	newCode  func() (string, error)
	now      func() time.Time
}

type Option func(*Registry)

func WithPublisher(p Publisher) Option { return func(r *Registry) { r.pub = p } }

func WithNarrator(n Narrator) Option { return func(r *Registry) { r.narrator = n } }

func WithLogger(l *zap.Logger) Option { return func(r *Registry) { r.logger = l } }

// WithCodeSource replaces the random code generator; tests use it to force collisions.
func WithCodeSource(f func() (string, error)) Option { return func(r *Registry) { r.newCode = f } }

func WithClock(now func() time.Time) Option { return func(r *Registry) { r.now = now } }

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		matches:  make(map[string]*entry),
		pub:      nopPublisher{},
		narrator: plainNarrator{},
		logger:   zap.NewNop(),
		newCode:  NewCode,
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	if r.pub == nil {
		r.pub = nopPublisher{}
	}
	if r.narrator == nil {
		r.narrator = plainNarrator{}
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

func (r *Registry) CreateMatch(hostName string) (State, error) {
	host := strings.TrimSpace(hostName)
	if host == "" {
		return State{}, ErrNameRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var id string
	for i := 0; i < maxCodeAttempts; i++ {
		c, err := r.newCode()
		if err != nil {
			return State{}, fmt.Errorf("generate match code: %w", err)
		}
		if _, taken := r.matches[c]; !taken {
			id = c
			break
		}
	}
	if id == "" {
		return State{}, fmt.Errorf("failed to allocate match code after %d attempts", maxCodeAttempts)
	}

	st := State{
		MatchID: id,
		Status:  StatusWaiting,
		Players: Players{P1: combat.NewSlot(host)},
		Turn:    P1,
		Log:     []string{r.narrator.Created(host)},
	}
	r.matches[id] = &entry{state: st, touched: r.now()}
	r.logger.Info("match_create", zap.String("match_id", id), zap.String("host", host))
	return st.Clone(), nil
}

func (r *Registry) JoinMatch(matchID, guestName string) (State, error) {
	id := NormalizeID(matchID)
	if id == "" {
		return State{}, ErrMatchIDRequired
	}
	guest := strings.TrimSpace(guestName)
	if guest == "" {
		return State{}, ErrNameRequired
	}
	e, ok := r.lookup(id)
	if !ok {
		return State{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return State{}, ErrNotFound
	}
	if e.state.Status != StatusWaiting {
		r.logger.Info("match_join_rejected", zap.String("match_id", id), zap.String("status", string(e.state.Status)))
		return State{}, ErrNotWaiting
	}
	if e.state.Players.P2 != nil {
		return State{}, ErrMatchFull
	}

	p2 := combat.NewSlot(guest)
	e.state.Players.P2 = &p2
	e.state.Status = StatusActive
	e.state.Turn = P1
	e.state.Log = append(e.state.Log, r.narrator.Joined(guest, e.state.Players.P1.Name))
	e.touched = r.now()
	r.logger.Info("match_join", zap.String("match_id", id), zap.String("guest", guest))
	r.pub.Notify(id, e.state.Clone())
	return e.state.Clone(), nil
}

// GetMatch returns a snapshot of the match, if it exists.
func (r *Registry) GetMatch(matchID string) (State, bool) {
	e, ok := r.lookup(NormalizeID(matchID))
	if !ok {
		return State{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return State{}, false
	}
	return e.state.Clone(), true
}

// ApplyAction validates and commits one turn. A rejected action leaves the match untouched.
func (r *Registry) ApplyAction(matchID string, player PlayerID, action combat.ActionType) (State, error) {
	id := NormalizeID(matchID)
	if !player.Valid() {
		return State{}, ErrInvalidPlayer
	}
	if !action.Valid() {
		return State{}, ErrInvalidAction
	}
	e, ok := r.lookup(id)
	if !ok {
		return State{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return State{}, ErrNotFound
	}
	st := &e.state
	if st.Status != StatusActive {
		r.logger.Info("match_action_rejected", zap.String("match_id", id), zap.String("status", string(st.Status)))
		return State{}, ErrNotActive
	}
	if st.Turn != player {
		r.logger.Debug("match_action_not_your_turn", zap.String("match_id", id), zap.String("player", string(player)))
		return State{}, ErrNotYourTurn
	}

	attacker, defender := st.Slot(player), st.Slot(player.Opponent())
	out := combat.Resolve(*attacker, *defender, action)
	*attacker, *defender = out.Attacker, out.Defender
	st.Log = append(st.Log, r.narrator.Action(attacker.Name, defender.Name, out.Event))
	r.logger.Info("match_action",
		zap.String("match_id", id),
		zap.String("player", string(player)),
		zap.String("action", string(action)),
		zap.Int("amount", out.Event.Amount),
	)

	// 승리 판정은 턴 전환보다 먼저
	if defender.Defeated() {
		w := player
		st.Status = StatusFinished
		st.Winner = &w
		st.Log = append(st.Log, r.narrator.Winner(attacker.Name))
		r.logger.Info("match_finish", zap.String("match_id", id), zap.String("winner", string(player)))
	}
	// the turn flips even on the finishing blow; clients key off status
	st.Turn = player.Opponent()
	e.touched = r.now()

	r.pub.Notify(id, st.Clone())
	return st.Clone(), nil
}

// Watch returns the current snapshot and subscribes fn to every later commit.
// Both happen under the match lock, so no commit can fall between them.
func (r *Registry) Watch(matchID string, fn func(State)) (State, func(), error) {
	id := NormalizeID(matchID)
	e, ok := r.lookup(id)
	if !ok {
		return State{}, nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return State{}, nil, ErrNotFound
	}
	unsub, err := r.pub.Subscribe(id, fn)
	if err != nil {
		return State{}, nil, fmt.Errorf("subscribe %s: %w", id, err)
	}
	return e.state.Clone(), unsub, nil
}

// Remove drops a match. Existing subscribers are left to their transports.
func (r *Registry) Remove(matchID string) bool {
	id := NormalizeID(matchID)
	r.mu.Lock()
	e, ok := r.matches[id]
	if ok {
		delete(r.matches, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
	return true
}

// Sweep removes finished matches untouched for finishedTTL and any other match untouched for idleTTL.
// A zero TTL disables that rule. Removed ids are returned sorted.
// The map lock is never held while waiting on a match lock.
func (r *Registry) Sweep(now time.Time, idleTTL, finishedTTL time.Duration) []string {
	if idleTTL <= 0 && finishedTTL <= 0 {
		return nil
	}
	r.mu.RLock()
	candidates := make(map[string]*entry, len(r.matches))
	for id, e := range r.matches {
		candidates[id] = e
	}
	r.mu.RUnlock()

	var removed []string
	for id, e := range candidates {
		e.mu.Lock()
		age := now.Sub(e.touched)
		expired := idleTTL > 0 && age >= idleTTL
		if e.state.Status == StatusFinished && finishedTTL > 0 && age >= finishedTTL {
			expired = true
		}
		if expired && !e.removed {
			r.mu.Lock()
			// a concurrent Remove may already have dropped it
			if r.matches[id] == e {
				delete(r.matches, id)
				e.removed = true
				removed = append(removed, id)
			}
			r.mu.Unlock()
		}
		e.mu.Unlock()
	}
	sort.Strings(removed)
	return removed
}

// Len reports the number of live matches.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matches)
}

func (r *Registry) lookup(id string) (*entry, bool) {
	if !ValidID(id) {
		return nil, false
	}
	r.mu.RLock()
	e, ok := r.matches[id]
	r.mu.RUnlock()
	return e, ok
}

type nopPublisher struct{}

func (nopPublisher) Subscribe(string, func(State)) (func(), error) { return func() {}, nil }
func (nopPublisher) Notify(string, State)                           {}

// plainNarrator produces the stock English lines when no catalog is configured.
type plainNarrator struct{}

func (plainNarrator) Created(host string) string {
	return fmt.Sprintf("%s created the match. Waiting for opponent...", host)
}

func (plainNarrator) Joined(guest, host string) string {
	return fmt.Sprintf("%s joined! %s's turn.", guest, host)
}

func (plainNarrator) Action(attacker, defender string, ev combat.Event) string {
	switch ev.Action {
	case combat.Punch, combat.Kick:
		verb := "punched"
		if ev.Action == combat.Kick {
			verb = "kicked"
		}
		line := fmt.Sprintf("%s %s %s for %d damage", attacker, verb, defender, ev.Amount)
		if ev.Blocked > 0 {
			line += fmt.Sprintf(" (%d blocked)", ev.Blocked)
		}
		return line
	case combat.Block:
		return fmt.Sprintf("%s raised their guard (+%d block)", attacker, ev.Amount)
	case combat.Heal:
		return fmt.Sprintf("%s healed for %d HP", attacker, ev.Amount)
	default:
		return fmt.Sprintf("%s did %s", attacker, ev.Action)
	}
}

func (plainNarrator) Winner(name string) string { return name + " wins!" }
