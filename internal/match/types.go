package match

import (
	"github.com/park285/cheese-arena/internal/combat"
)

// PlayerID names a seat in a match.
type PlayerID string

const (
	P1 PlayerID = "p1"
	P2 PlayerID = "p2"
)

func ParsePlayerID(s string) (PlayerID, bool) {
	p := PlayerID(s)
	return p, p.Valid()
}

func (p PlayerID) Valid() bool { return p == P1 || p == P2 }

func (p PlayerID) Opponent() PlayerID {
	if p == P1 {
		return P2
	}
	return P1
}

// Status represents the match lifecycle: waiting -> active -> finished.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// PlayerSlot is one combatant's name, hp and block.
type PlayerSlot = combat.Slot

type Players struct {
	P1 PlayerSlot  `json:"p1"`
	P2 *PlayerSlot `json:"p2"`
}

// State is the full snapshot of one match, as sent to clients.
type State struct {
	MatchID string    `json:"matchId"`
	Status  Status    `json:"status"`
	Players Players   `json:"players"`
	Turn    PlayerID  `json:"turn"`
	Log     []string  `json:"log"`
	Winner  *PlayerID `json:"winner"`
}

// Clone returns a deep copy that shares no memory with s.
func (s State) Clone() State {
	out := s
	if s.Players.P2 != nil {
		p2 := *s.Players.P2
		out.Players.P2 = &p2
	}
	out.Log = append([]string(nil), s.Log...)
	if s.Winner != nil {
		w := *s.Winner
		out.Winner = &w
	}
	return out
}

// Slot returns the named seat, or nil when it is empty.
func (s *State) Slot(id PlayerID) *PlayerSlot {
	switch id {
	case P1:
		return &s.Players.P1
	case P2:
		return s.Players.P2
	default:
		return nil
	}
}
