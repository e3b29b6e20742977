package resource

// Nature is the elemental type of a species or a move.
type Nature string

const (
	NatureNormal   Nature = "NORMAL"
	NatureFire     Nature = "FIRE"
	NatureWater    Nature = "WATER"
	NatureGrass    Nature = "GRASS"
	NatureElectric Nature = "ELECTRIC"
	NatureIce      Nature = "ICE"
	NatureFighting Nature = "FIGHTING"
	NaturePoison   Nature = "POISON"
	NatureGround   Nature = "GROUND"
	NatureFlying   Nature = "FLYING"
	NatureBug      Nature = "BUG"
	NatureRock     Nature = "ROCK"
)

// strengths maps each attacking nature to the defending natures it deals
// double damage to. There are no resistances.
var strengths = map[Nature][]Nature{
	NatureNormal:   {},
	NatureFighting: {NatureRock, NatureIce, NatureNormal},
	NatureFlying:   {NatureFighting, NatureBug, NatureGrass},
	NaturePoison:   {NatureGrass},
	NatureGround:   {NaturePoison, NatureRock, NatureFire, NatureElectric},
	NatureRock:     {NatureFlying, NatureBug, NatureFire, NatureIce},
	NatureBug:      {NatureGrass},
	NatureFire:     {NatureBug, NatureGrass, NatureIce},
	NatureWater:    {NatureGround, NatureRock, NatureFire},
	NatureGrass:    {NatureGround, NatureRock, NatureWater},
	NatureElectric: {NatureWater, NatureFlying},
	NatureIce:      {NatureFlying, NatureGround, NatureGrass},
}

// Valid reports whether n is one of the twelve natures.
func (n Nature) Valid() bool {
	_, ok := strengths[n]
	return ok
}

// IsStrongAgainst reports whether an attack of nature attacking is super
// effective against a defender of nature defending.
func IsStrongAgainst(attacking, defending Nature) bool {
	for _, n := range strengths[attacking] {
		if n == defending {
			return true
		}
	}
	return false
}

// TypeMultiplier is ×2 for every defending nature weak to attacking, so a
// dual-nature defender weak on both slots takes ×4.
func TypeMultiplier(attacking Nature, defending []Nature) float64 {
	mult := 1.0
	for _, d := range defending {
		if IsStrongAgainst(attacking, d) {
			mult *= 2
		}
	}
	return mult
}
