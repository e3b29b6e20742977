package match

import (
	"fmt"

	"github.com/kasuganosora/brotmon/game/battle"
	"github.com/kasuganosora/brotmon/resource"
)

// Catalog resolves species and move ids. *resource.Loader satisfies it.
type Catalog interface {
	BrotmonByID(id string) *resource.Brotmon
	MoveByID(id string) *resource.Move
}

func toSide(cat Catalog, t *Trainer, action PendingAction) (battle.Side, error) {
	side := battle.Side{
		TrainerID:   t.ID,
		TrainerName: t.Username,
		Action:      battle.Action{Kind: action.Kind, TargetID: action.TargetID},
		Roster:      make([]battle.Creature, 0, len(t.Roster)),
		Active:      -1,
	}
	for i, m := range t.Roster {
		species := cat.BrotmonByID(m.BrotmonID)
		if species == nil {
			return battle.Side{}, fmt.Errorf("match: roster member %s: species %q not in catalog", m.ID, m.BrotmonID)
		}
		c := battle.Creature{
			ID:        m.ID,
			Species:   species,
			CurrentHP: m.CurrentHP,
			Effects:   cloneEffects(m.Effects),
			Moves:     make([]battle.MoveSlot, 0, len(m.Moves)),
		}
		for _, mv := range m.Moves {
			def := cat.MoveByID(mv.MoveID)
			if def == nil {
				return battle.Side{}, fmt.Errorf("match: move instance %s: move %q not in catalog", mv.ID, mv.MoveID)
			}
			c.Moves = append(c.Moves, battle.MoveSlot{ID: mv.ID, Move: def, CurrentUses: mv.CurrentUses})
		}
		if m.ID == t.ActiveID {
			side.Active = i
		}
		side.Roster = append(side.Roster, c)
	}
	return side, nil
}

// fromSide maps the engine's roster back onto the persisted members. The
// engine never reorders the roster, so indexes line up with t.Roster.
func fromSide(t *Trainer, s battle.Side) TrainerState {
	st := TrainerState{TrainerID: t.ID, Roster: make([]Member, len(t.Roster))}
	for i, m := range t.Roster {
		c := s.Roster[i]
		m.CurrentHP = c.CurrentHP
		m.Effects = cloneEffects(c.Effects)
		moves := make([]MemberMove, len(m.Moves))
		for j, mv := range m.Moves {
			mv.CurrentUses = c.Moves[j].CurrentUses
			moves[j] = mv
		}
		m.Moves = moves
		st.Roster[i] = m
	}
	if a := s.ActiveCreature(); a != nil {
		st.ActiveID = a.ID
	}
	return st
}

func cloneEffects(in []resource.StatusEffect) []resource.StatusEffect {
	out := make([]resource.StatusEffect, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}
