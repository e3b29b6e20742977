package battle

import (
	"math/rand"
	"sync/atomic"
	"time"
)

// RNG is the random source used for every roll in a turn.
// *rand.Rand satisfies it.
type RNG interface {
	Float64() float64
	Intn(n int) int
}

var seedSeq atomic.Int64

// NewRNG returns a freshly seeded source. A *rand.Rand is not safe for
// concurrent use, so every turn gets its own.
func NewRNG() RNG {
	return rand.New(rand.NewSource(time.Now().UnixNano() + seedSeq.Add(1)))
}

// passes is the single comparator for accuracy and effect chance rolls.
func passes(roll, threshold float64) bool {
	return roll <= threshold
}
