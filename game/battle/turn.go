package battle

import (
	"fmt"
	"sort"

	"github.com/kasuganosora/brotmon/resource"
)

// QueuedMove is one side's MOVE waiting for its place in the turn.
type QueuedMove struct {
	Side     int
	Priority int
	Speed    float64
}

// TurnOrder decides the execution order of the queued moves.
type TurnOrder interface {
	// Order returns a new slice; the input is not modified.
	Order(queue []QueuedMove) []QueuedMove
}

// DefaultTurnOrder sorts by priority, then effective speed, both
// descending. Exact ties keep queue order, so the host goes first.
type DefaultTurnOrder struct{}

func (DefaultTurnOrder) Order(queue []QueuedMove) []QueuedMove {
	out := append([]QueuedMove(nil), queue...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Speed > out[j].Speed
	})
	return out
}

// Config configures an Engine.
type Config struct {
	RNG       RNG       // nil = NewRNG()
	TurnOrder TurnOrder // nil = DefaultTurnOrder
}

// Engine resolves turns. It holds no battle state; build one per turn.
type Engine struct {
	rng   RNG
	order TurnOrder
}

// NewEngine creates an Engine.
func NewEngine(cfg Config) *Engine {
	if cfg.RNG == nil {
		cfg.RNG = NewRNG()
	}
	if cfg.TurnOrder == nil {
		cfg.TurnOrder = DefaultTurnOrder{}
	}
	return &Engine{rng: cfg.RNG, order: cfg.TurnOrder}
}

// TurnInput is the snapshot a turn is computed from. Sides[0] is the host.
type TurnInput struct {
	Turn  int
	Sides [2]Side
}

// Outcome is present only on a terminal result.
type Outcome struct {
	WinnerID string // empty on a draw
	Draw     bool
}

// TurnResult is the computed turn: updated copies of both sides and the
// narrative log in order.
type TurnResult struct {
	Turn    int
	Sides   [2]Side
	Logs    []string
	Outcome *Outcome
}

// Finished reports whether the turn ended the battle.
func (r *TurnResult) Finished() bool {
	return r.Outcome != nil
}

func (r *TurnResult) logf(format string, args ...any) {
	r.Logs = append(r.Logs, fmt.Sprintf(format, args...))
}

// ResolveTurn computes one turn. The input is deep-copied first, so on
// error nothing is half-applied and the caller's snapshot is untouched.
func (e *Engine) ResolveTurn(in TurnInput) (*TurnResult, error) {
	for i := range in.Sides {
		if !in.Sides[i].Action.Complete() {
			return nil, fmt.Errorf("%w: side %d", ErrActionIncomplete, i)
		}
	}

	res := &TurnResult{Turn: in.Turn}
	for i := range in.Sides {
		res.Sides[i] = in.Sides[i].Clone()
	}

	// Switches resolve before any move, regardless of speed.
	for i := range res.Sides {
		s := &res.Sides[i]
		if s.Action.Kind != ActionSwitch {
			continue
		}
		idx := s.indexOf(s.Action.TargetID)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrCreatureNotFound, s.Action.TargetID)
		}
		if s.Roster[idx].Fainted() {
			return nil, fmt.Errorf("%w: %s", ErrSwitchTargetFainted, s.Action.TargetID)
		}
		s.Active = idx
		res.logf("%s switched to %s!", s.TrainerName, s.Roster[idx].Name())
	}

	// Validate every move before rolling anything, then order them.
	var queue []QueuedMove
	for i := range res.Sides {
		s := &res.Sides[i]
		switch s.Action.Kind {
		case ActionSwitch:
			continue
		case ActionMove:
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedAction, s.Action.Kind)
		}
		c := s.ActiveCreature()
		if c == nil {
			return nil, fmt.Errorf("%w: side %d has no active member", ErrCreatureNotFound, i)
		}
		slot := c.Slot(s.Action.TargetID)
		if slot == nil {
			return nil, fmt.Errorf("%w: %s", ErrMoveNotFound, s.Action.TargetID)
		}
		queue = append(queue, QueuedMove{Side: i, Priority: slot.Move.Priority, Speed: c.EffectiveSpeed()})
	}
	for i := range res.Sides {
		if res.Sides[i].ActiveCreature() == nil {
			return nil, fmt.Errorf("%w: side %d has no active member", ErrCreatureNotFound, i)
		}
	}

	// Moves.
	for _, q := range e.order.Order(queue) {
		e.executeMove(res, q.Side)
	}

	// End-of-turn effects.
	for i := range res.Sides {
		c := res.Sides[i].ActiveCreature()
		if c.Fainted() {
			continue
		}
		res.Logs = append(res.Logs, ProcessDamageEffects(c)...)
		res.Logs = append(res.Logs, TickModifierEffects(c)...)
	}

	// Faint check and auto-switch. Both sides are always checked.
	var wiped [2]bool
	for i := range res.Sides {
		s := &res.Sides[i]
		c := s.ActiveCreature()
		if !c.Fainted() {
			continue
		}
		res.logf("%s fainted!", c.Name())
		next := s.firstLiving()
		if next < 0 {
			wiped[i] = true
			continue
		}
		s.Active = next
		res.logf("%s sent out %s!", s.TrainerName, s.Roster[next].Name())
	}

	switch {
	case wiped[0] && wiped[1]:
		res.Outcome = &Outcome{Draw: true}
	case wiped[0]:
		res.Outcome = &Outcome{WinnerID: res.Sides[1].TrainerID}
	case wiped[1]:
		res.Outcome = &Outcome{WinnerID: res.Sides[0].TrainerID}
	}
	return res, nil
}

// executeMove runs one side's MOVE against the other side's active member.
func (e *Engine) executeMove(res *TurnResult, side int) {
	atkSide := &res.Sides[side]
	attacker := atkSide.ActiveCreature()
	defender := res.Sides[1-side].ActiveCreature()

	// Knocked out earlier this turn.
	if attacker.Fainted() {
		return
	}

	check := ProcessInterruptiveEffects(e.rng, attacker)
	res.Logs = append(res.Logs, check.Notes...)
	if check.Interrupted() {
		res.Logs = append(res.Logs, check.Interrupt.Message)
		return
	}

	slot := attacker.Slot(atkSide.Action.TargetID)
	mv := slot.Move
	if slot.CurrentUses <= 0 {
		slot.CurrentUses = 0
		res.logf("%s can't use the move %s anymore!", attacker.Name(), mv.Name)
		return
	}
	slot.CurrentUses--

	if !passes(e.rng.Float64(), mv.Accuracy) {
		res.logf("%s tried %s but missed!", attacker.Name(), mv.Name)
		return
	}

	if mv.Kind == resource.KindAttack {
		hit := CalculateDamage(e.rng, DamageInput{
			Power:           mv.Power,
			Attack:          float64(attacker.Species.Attack) * StatusMultiplier(resource.StatAttack, attacker.Effects),
			Defense:         float64(defender.Species.Defense) * StatusMultiplier(resource.StatDefense, defender.Effects),
			STAB:            attacker.Species.HasNature(mv.Nature),
			MoveNature:      mv.Nature,
			DefenderNatures: defender.Species.Natures,
			ForceCrit:       mv.AlwaysCrit,
		})
		defender.CurrentHP = max(0, defender.CurrentHP-hit.Damage)
		line := fmt.Sprintf("%s used %s on %s and dealt %d damage!", attacker.Name(), mv.Name, defender.Name(), hit.Damage)
		if hit.Critical {
			line += " Critical hit!"
		}
		res.Logs = append(res.Logs, line)
	} else {
		res.logf("%s used %s!", attacker.Name(), mv.Name)
	}

	if mv.Effect == nil {
		return
	}
	// BUFF targets the user; every other effect type targets the opponent.
	target := defender
	if mv.Effect.Type == resource.EffectBuff {
		target = attacker
	}
	if target.Fainted() {
		return
	}
	if passes(e.rng.Float64(), mv.Effect.Chance) {
		res.Logs = append(res.Logs, ApplyStatusEffect(target, *mv.Effect, mv.Name))
	}
}
