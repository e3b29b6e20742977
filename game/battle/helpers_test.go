package battle

import (
	"github.com/kasuganosora/brotmon/resource"
)

// scriptedRNG replays queued rolls. When a queue runs dry Float64 returns
// floatFallback and Intn returns n-1, which makes the variance factor 1.
type scriptedRNG struct {
	floats        []float64
	ints          []int
	floatFallback float64
	floatCalls    int
	intCalls      int
}

func newScripted(floats ...float64) *scriptedRNG {
	return &scriptedRNG{floats: floats, floatFallback: 0.5}
}

func (r *scriptedRNG) Float64() float64 {
	r.floatCalls++
	if len(r.floats) == 0 {
		return r.floatFallback
	}
	v := r.floats[0]
	r.floats = r.floats[1:]
	return v
}

func (r *scriptedRNG) Intn(n int) int {
	r.intCalls++
	if len(r.ints) == 0 {
		return n - 1
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	return v
}

func species(name string, speed int, natures ...resource.Nature) *resource.Brotmon {
	if len(natures) == 0 {
		natures = []resource.Nature{resource.NatureNormal}
	}
	return &resource.Brotmon{
		ID:      name,
		Name:    name,
		Natures: natures,
		MaxHP:   100,
		Attack:  50,
		Defense: 50,
		Speed:   speed,
	}
}

var tackle = &resource.Move{
	ID:       "tackle",
	Name:     "Tackle",
	Nature:   resource.NatureNormal,
	Kind:     resource.KindAttack,
	Power:    40,
	Accuracy: 1,
	MaxUses:  10,
}

func creature(id string, sp *resource.Brotmon, moves ...*resource.Move) Creature {
	if len(moves) == 0 {
		moves = []*resource.Move{tackle}
	}
	c := Creature{ID: id, Species: sp, CurrentHP: sp.MaxHP}
	for _, m := range moves {
		c.Moves = append(c.Moves, MoveSlot{ID: id + "-" + m.ID, Move: m, CurrentUses: m.MaxUses})
	}
	return c
}

func side(trainer string, roster ...Creature) Side {
	return Side{TrainerID: trainer + "-id", TrainerName: trainer, Roster: roster}
}

func useMove(s *Side, moveID string) {
	s.Action = Action{Kind: ActionMove, TargetID: s.Roster[s.Active].ID + "-" + moveID}
}

func hasLog(logs []string, want string) bool {
	for _, l := range logs {
		if l == want {
			return true
		}
	}
	return false
}
