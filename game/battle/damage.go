package battle

import (
	"math"

	"github.com/kasuganosora/brotmon/resource"
)

const (
	critChance     = 0.1
	stabMultiplier = 1.5
	varianceMin    = 217
	varianceMax    = 255
)

// DamageInput bundles everything needed to compute one hit. Attack and
// Defense must already include status multipliers.
type DamageInput struct {
	Power           int
	Attack          float64
	Defense         float64
	STAB            bool
	MoveNature      resource.Nature
	DefenderNatures []resource.Nature
	ForceCrit       bool
}

// DamageResult holds the outcome of a damage calculation. Raw is the
// value before flooring.
type DamageResult struct {
	Damage   int
	Raw      float64
	Critical bool
}

// CalculateDamage runs the damage formula:
//
//	((2*crit/5 + 2) * power * (atk/def)) / 50 + 2
//
// then STAB, ×2 per weak defending nature and a 217..255/255 variance
// roll. The crit roll is skipped when ForceCrit is set.
func CalculateDamage(rng RNG, in DamageInput) DamageResult {
	critical := in.ForceCrit || rng.Float64() < critChance
	crit := 1.0
	if critical {
		crit = 2
	}

	def := in.Defense
	if def <= 0 {
		def = 1
	}
	dmg := ((2*crit/5+2)*float64(in.Power)*(in.Attack/def))/50 + 2

	if in.STAB {
		dmg *= stabMultiplier
	}
	dmg *= resource.TypeMultiplier(in.MoveNature, in.DefenderNatures)

	if math.Round(dmg) != 1 {
		roll := rng.Intn(varianceMax-varianceMin+1) + varianceMin
		dmg *= float64(roll) / varianceMax
	}
	if dmg < 0 {
		dmg = 0
	}
	return DamageResult{Damage: int(math.Floor(dmg)), Raw: dmg, Critical: critical}
}
