package battle

import (
	"fmt"
	"math"
	"strings"

	"github.com/kasuganosora/brotmon/resource"
)

const (
	paralyzeChance  = 1.0 / 4
	wakeChance      = 1.0 / 3
	selfHitChance   = 1.0 / 2
	brainrotPower   = 40
	poisonHPDivisor = 8
	burnHPDivisor   = 16
)

// StatusMultiplier folds every BUFF/DEBUFF that sets stat into a product
// of (1 + modifier). No matching effect yields 1.
func StatusMultiplier(stat resource.Stat, effects []resource.StatusEffect) float64 {
	mult := 1.0
	for _, e := range effects {
		if !e.Type.IsModifier() {
			continue
		}
		if mod, ok := e.Modifiers[stat]; ok {
			mult *= 1 + mod
		}
	}
	return mult
}

// Interrupt explains why a creature could not act.
type Interrupt struct {
	Cause   resource.EffectType
	Message string
}

// InterruptCheck is the outcome of ProcessInterruptiveEffects. Notes hold
// messages from effects that ended without blocking the action.
type InterruptCheck struct {
	Interrupt *Interrupt
	Notes     []string
}

// Interrupted reports whether the creature loses its action.
func (ic InterruptCheck) Interrupted() bool {
	return ic.Interrupt != nil
}

type effectOutcome struct {
	message   string
	interrupt bool
	remove    bool
}

// active is true while an effect still has turns left. Interruptive
// effects have no permanent form: a -1 duration ends on the next check.
func active(e *resource.StatusEffect) bool {
	return e.Duration > 0
}

// ProcessInterruptiveEffects walks c's effects in stored order and runs the
// PARALYZE, SLEEP and BRAINROT handlers. The first handler that interrupts
// ends the walk. c is modified in place.
func ProcessInterruptiveEffects(rng RNG, c *Creature) InterruptCheck {
	var check InterruptCheck
	for i := 0; i < len(c.Effects); {
		e := &c.Effects[i]
		var out effectOutcome
		switch e.Type {
		case resource.EffectParalyze:
			out = handleParalyze(rng, c, e)
		case resource.EffectSleep:
			out = handleSleep(rng, c, e)
		case resource.EffectBrainrot:
			out = handleBrainrot(rng, c, e)
		default:
			i++
			continue
		}

		cause := e.Type
		if out.remove {
			c.Effects = append(c.Effects[:i], c.Effects[i+1:]...)
		} else {
			i++
		}
		if out.interrupt {
			check.Interrupt = &Interrupt{Cause: cause, Message: out.message}
			return check
		}
		if out.message != "" {
			check.Notes = append(check.Notes, out.message)
		}
	}
	return check
}

func handleParalyze(rng RNG, c *Creature, e *resource.StatusEffect) effectOutcome {
	if !active(e) {
		return effectOutcome{message: c.Name() + " is no longer paralyzed!", remove: true}
	}
	e.Duration--
	if rng.Float64() < paralyzeChance {
		return effectOutcome{message: c.Name() + " is paralyzed! It can't move!", interrupt: true}
	}
	return effectOutcome{}
}

func handleSleep(rng RNG, c *Creature, e *resource.StatusEffect) effectOutcome {
	if !active(e) {
		return effectOutcome{message: c.Name() + " woke up!", remove: true}
	}
	e.Duration--
	if rng.Float64() < wakeChance {
		return effectOutcome{message: c.Name() + " woke up!", remove: true}
	}
	return effectOutcome{message: c.Name() + " is sleeping.", interrupt: true}
}

func handleBrainrot(rng RNG, c *Creature, e *resource.StatusEffect) effectOutcome {
	if !active(e) {
		return effectOutcome{message: c.Name() + " is no longer brainroted!", remove: true}
	}
	e.Duration--
	if rng.Float64() >= selfHitChance {
		return effectOutcome{message: c.Name() + " finally recovered its last two brain cells!", remove: true}
	}

	// The creature hits itself with its own modified stats.
	hit := CalculateDamage(rng, DamageInput{
		Power:   brainrotPower,
		Attack:  float64(c.Species.Attack) * StatusMultiplier(resource.StatAttack, c.Effects),
		Defense: float64(c.Species.Defense) * StatusMultiplier(resource.StatDefense, c.Effects),
	})
	c.CurrentHP = int(math.Floor(math.Max(0, float64(c.CurrentHP)-hit.Raw)))

	shown := int(math.Round(hit.Raw))
	msg := fmt.Sprintf("%s hurts itself for %d damage in its brainrot haze!", c.Name(), shown)
	if rng.Float64() < 0.5 {
		msg = fmt.Sprintf("%s derped out and hurt itself for %d damage in its brainrot!", c.Name(), shown)
	}
	return effectOutcome{message: msg, interrupt: true}
}

// sameIdentity: BUFF/DEBUFF are keyed by name, everything else by type.
func sameIdentity(existing, incoming resource.StatusEffect) bool {
	if incoming.Type.IsModifier() {
		return existing.Type.IsModifier() && existing.Name == incoming.Name
	}
	return existing.Type == incoming.Type
}

// ApplyStatusEffect attaches a copy of effect to c, or refreshes the
// duration of the instance with the same identity.
func ApplyStatusEffect(c *Creature, effect resource.StatusEffect, moveName string) string {
	inst := effect.Clone()
	msg := fmt.Sprintf("%s was affected by %s from %s!", c.Name(), strings.ToLower(string(inst.Type)), moveName)
	for i := range c.Effects {
		if sameIdentity(c.Effects[i], inst) {
			c.Effects[i].Duration = inst.Duration
			return msg
		}
	}
	c.Effects = append(c.Effects, inst)
	return msg
}

// ProcessDamageEffects applies end-of-turn POISON (max_hp/8) and BURN
// (max_hp/16) damage and counts their durations down. Permanent effects
// are kept and deal nothing. Other effects are left untouched.
func ProcessDamageEffects(c *Creature) []string {
	var logs []string
	kept := make([]resource.StatusEffect, 0, len(c.Effects))
	for _, e := range c.Effects {
		if e.Permanent() {
			kept = append(kept, e)
			continue
		}
		var divisor int
		switch e.Type {
		case resource.EffectPoison:
			divisor = poisonHPDivisor
		case resource.EffectBurn:
			divisor = burnHPDivisor
		default:
			kept = append(kept, e)
			continue
		}

		dmg := c.MaxHP() / divisor
		c.CurrentHP = max(0, c.CurrentHP-dmg)
		logs = append(logs, fmt.Sprintf("%s took %d damage from %s!", c.Name(), dmg, strings.ToLower(string(e.Type))))

		e.Duration--
		if e.Duration > 0 {
			kept = append(kept, e)
		}
	}
	c.Effects = kept
	return logs
}

// TickModifierEffects counts down finite BUFF/DEBUFF durations and drops
// the expired ones.
func TickModifierEffects(c *Creature) []string {
	var logs []string
	kept := make([]resource.StatusEffect, 0, len(c.Effects))
	for _, e := range c.Effects {
		if !e.Type.IsModifier() || e.Permanent() {
			kept = append(kept, e)
			continue
		}
		e.Duration--
		if e.Duration > 0 {
			kept = append(kept, e)
			continue
		}
		logs = append(logs, fmt.Sprintf("%s's %s wore off.", c.Name(), strings.ToLower(string(e.Type))))
	}
	c.Effects = kept
	return logs
}
