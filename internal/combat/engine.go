package combat

// Balance values shared by every match.
const (
	MaxHP       = 30
	PunchDamage = 5
	KickDamage  = 8
	BlockAmount = 5
	HealAmount  = 3
)

// ActionType is one of the four moves a player can submit on their turn.
type ActionType string

const (
	Punch ActionType = "PUNCH"
	Kick  ActionType = "KICK"
	Block ActionType = "BLOCK"
	Heal  ActionType = "HEAL"
)

// ParseAction accepts the wire spelling of an action exactly.
func ParseAction(s string) (ActionType, bool) {
	a := ActionType(s)
	return a, a.Valid()
}

func (a ActionType) Valid() bool {
	switch a {
	case Punch, Kick, Block, Heal:
		return true
	default:
		return false
	}
}

// Damage returns the raw damage of an attack; zero for BLOCK and HEAL.
func (a ActionType) Damage() int {
	switch a {
	case Punch:
		return PunchDamage
	case Kick:
		return KickDamage
	default:
		return 0
	}
}

// Slot is one combatant's mutable attributes.
type Slot struct {
	Name  string `json:"name"`
	HP    int    `json:"hp"`
	Block int    `json:"block"`
}

// NewSlot returns a fresh combatant at full health.
func NewSlot(name string) Slot { return Slot{Name: name, HP: MaxHP} }

func (s Slot) Defeated() bool { return s.HP <= 0 }

// Event describes what an action did, for narration.
// Amount is damage dealt for attacks, HP restored for HEAL and block gained for BLOCK.
type Event struct {
	Action  ActionType
	Amount  int
	Blocked int
}

type Outcome struct {
	Attacker Slot
	Defender Slot
	Event    Event
}

// Resolve computes the effect of action taken by attacker against defender.
// Inputs are never modified. An invalid action yields the slots unchanged.
func Resolve(attacker, defender Slot, action ActionType) Outcome {
	out := Outcome{Attacker: attacker, Defender: defender, Event: Event{Action: action}}
	switch action {
	case Punch, Kick:
		raw := action.Damage()
		dealt := max(0, raw-defender.Block)
		out.Defender.HP = max(0, defender.HP-dealt)
		// block is consumed by the full raw damage, not just the absorbed part
		out.Defender.Block = max(0, defender.Block-raw)
		out.Event.Amount = dealt
		out.Event.Blocked = raw - dealt
	case Block:
		out.Attacker.Block += BlockAmount
		out.Event.Amount = BlockAmount
	case Heal:
		healed := max(0, min(HealAmount, MaxHP-attacker.HP))
		out.Attacker.HP += healed
		out.Event.Amount = healed
	}
	return out
}
