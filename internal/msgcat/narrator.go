package msgcat

import (
	"fmt"

	"github.com/park285/cheese-arena/internal/combat"
	"go.uber.org/zap"
)

// Keys every catalog must provide for match narration.
const (
	KeyCreated      = "match.created"
	KeyJoined       = "match.joined"
	KeyWinner       = "match.winner"
	KeyPunch        = "combat.punch"
	KeyPunchBlocked = "combat.punch_blocked"
	KeyKick         = "combat.kick"
	KeyKickBlocked  = "combat.kick_blocked"
	KeyBlock        = "combat.block"
	KeyHeal         = "combat.heal"
)

var narrationKeys = []string{
	KeyCreated, KeyJoined, KeyWinner,
	KeyPunch, KeyPunchBlocked, KeyKick, KeyKickBlocked, KeyBlock, KeyHeal,
}

type actionData struct {
	Attacker string
	Defender string
	Amount   int
	Blocked  int
}

// Narrator renders match log lines from a Catalog.
type Narrator struct {
	cat    *Catalog
	logger *zap.Logger
}

// NewNarrator checks that every narration key renders before returning.
func NewNarrator(cat *Catalog, logger *zap.Logger) (*Narrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	probe := map[string]any{
		KeyCreated: map[string]string{"Host": "a"},
		KeyJoined:  map[string]string{"Guest": "b", "Host": "a"},
		KeyWinner:  map[string]string{"Name": "a"},
	}
	for _, k := range narrationKeys {
		data, ok := probe[k]
		if !ok {
			data = actionData{Attacker: "a", Defender: "b", Amount: 1, Blocked: 1}
		}
		if _, err := cat.Render(k, data); err != nil {
			return nil, fmt.Errorf("narration key %s: %w", k, err)
		}
	}
	return &Narrator{cat: cat, logger: logger}, nil
}

func (n *Narrator) Created(host string) string {
	return n.render(KeyCreated, map[string]string{"Host": host}, host+" created the match.")
}

func (n *Narrator) Joined(guest, host string) string {
	return n.render(KeyJoined, map[string]string{"Guest": guest, "Host": host}, guest+" joined!")
}

func (n *Narrator) Winner(name string) string {
	return n.render(KeyWinner, map[string]string{"Name": name}, name+" wins!")
}

func (n *Narrator) Action(attacker, defender string, ev combat.Event) string {
	var key string
	switch ev.Action {
	case combat.Punch:
		key = KeyPunch
		if ev.Blocked > 0 {
			key = KeyPunchBlocked
		}
	case combat.Kick:
		key = KeyKick
		if ev.Blocked > 0 {
			key = KeyKickBlocked
		}
	case combat.Block:
		key = KeyBlock
	case combat.Heal:
		key = KeyHeal
	}
	data := actionData{Attacker: attacker, Defender: defender, Amount: ev.Amount, Blocked: ev.Blocked}
	return n.render(key, data, fmt.Sprintf("%s used %s", attacker, ev.Action))
}

func (n *Narrator) render(key string, data any, fallback string) string {
	s, err := n.cat.Render(key, data)
	if err != nil {
		n.logger.Warn("narration_render_error", zap.String("key", key), zap.Error(err))
		return fallback
	}
	return s
}
