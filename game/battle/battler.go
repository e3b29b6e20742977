package battle

import (
	"github.com/kasuganosora/brotmon/resource"
)

// ActionKind is what a trainer chose to do this turn.
type ActionKind string

const (
	ActionMove    ActionKind = "MOVE"
	ActionSwitch  ActionKind = "SWITCH"
	ActionForfeit ActionKind = "FORFEIT"
	ActionStart   ActionKind = "START"
)

// Action is a trainer's pending choice. TargetID is a move slot id for
// MOVE and a roster member id for SWITCH.
type Action struct {
	Kind     ActionKind
	TargetID string
}

// Complete reports whether the action can enter turn resolution.
func (a Action) Complete() bool {
	return a.Kind != "" && a.TargetID != ""
}

// MoveSlot is a move instance owned by a creature.
type MoveSlot struct {
	ID          string
	Move        *resource.Move
	CurrentUses int
}

// Creature is a roster member as the engine sees it.
type Creature struct {
	ID        string
	Species   *resource.Brotmon
	CurrentHP int
	Effects   []resource.StatusEffect
	Moves     []MoveSlot
}

func (c *Creature) Name() string  { return c.Species.Name }
func (c *Creature) MaxHP() int    { return c.Species.MaxHP }
func (c *Creature) Fainted() bool { return c.CurrentHP <= 0 }

// EffectiveSpeed is base speed scaled by active speed modifiers.
func (c *Creature) EffectiveSpeed() float64 {
	return float64(c.Species.Speed) * StatusMultiplier(resource.StatSpeed, c.Effects)
}

// Slot returns the move slot with the given id, or nil.
func (c *Creature) Slot(id string) *MoveSlot {
	for i := range c.Moves {
		if c.Moves[i].ID == id {
			return &c.Moves[i]
		}
	}
	return nil
}

// Clone deep-copies effects and move slots. Catalog pointers are shared.
func (c Creature) Clone() Creature {
	out := c
	out.Effects = make([]resource.StatusEffect, len(c.Effects))
	for i, e := range c.Effects {
		out.Effects[i] = e.Clone()
	}
	out.Moves = append([]MoveSlot(nil), c.Moves...)
	return out
}

// Side is one trainer's part of a turn. Roster is in creation order and
// Active indexes into it.
type Side struct {
	TrainerID   string
	TrainerName string
	Action      Action
	Roster      []Creature
	Active      int
}

// ActiveCreature returns the battling roster member, or nil when Active
// is out of range.
func (s *Side) ActiveCreature() *Creature {
	if s.Active < 0 || s.Active >= len(s.Roster) {
		return nil
	}
	return &s.Roster[s.Active]
}

// Clone deep-copies the roster.
func (s Side) Clone() Side {
	out := s
	out.Roster = make([]Creature, len(s.Roster))
	for i, c := range s.Roster {
		out.Roster[i] = c.Clone()
	}
	return out
}

func (s *Side) indexOf(memberID string) int {
	for i := range s.Roster {
		if s.Roster[i].ID == memberID {
			return i
		}
	}
	return -1
}

// firstLiving returns the earliest-created member with HP left, or -1.
func (s *Side) firstLiving() int {
	for i := range s.Roster {
		if !s.Roster[i].Fainted() {
			return i
		}
	}
	return -1
}
