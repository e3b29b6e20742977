package resource

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

//go:embed data/*.json
var embeddedData embed.FS

// ---- Catalog Data Structures ----

// MoveKind separates damaging moves from pure status moves.
type MoveKind string

const (
	KindAttack MoveKind = "ATTACK"
	KindStatus MoveKind = "STATUS"
)

// EffectType enumerates the status effects a move can inflict.
type EffectType string

const (
	EffectPoison   EffectType = "POISON"
	EffectBurn     EffectType = "BURN"
	EffectParalyze EffectType = "PARALYZE"
	EffectSleep    EffectType = "SLEEP"
	EffectBrainrot EffectType = "BRAINROT"
	EffectBuff     EffectType = "BUFF"
	EffectDebuff   EffectType = "DEBUFF"
)

// Valid reports whether t is a known effect type.
func (t EffectType) Valid() bool {
	switch t {
	case EffectPoison, EffectBurn, EffectParalyze, EffectSleep,
		EffectBrainrot, EffectBuff, EffectDebuff:
		return true
	}
	return false
}

// IsModifier is true for BUFF/DEBUFF, the effects keyed by name.
func (t EffectType) IsModifier() bool {
	return t == EffectBuff || t == EffectDebuff
}

// Stat names a stat that buffs and debuffs can modify.
type Stat string

const (
	StatAttack  Stat = "attack"
	StatDefense Stat = "defense"
	StatSpeed   Stat = "speed"
)

// PermanentDuration marks an effect that never expires.
const PermanentDuration = -1

// StatusEffect is used both as a move's effect template and as the
// instance attached to a roster member.
type StatusEffect struct {
	Name      string           `json:"name"`
	Type      EffectType       `json:"type"`
	Duration  int              `json:"duration"`
	Chance    float64          `json:"chance"`
	Modifiers map[Stat]float64 `json:"modifiers,omitempty"`
}

// Permanent reports whether the effect has no expiry.
func (e StatusEffect) Permanent() bool {
	return e.Duration == PermanentDuration
}

// Clone returns a deep copy; the modifiers map is not shared.
func (e StatusEffect) Clone() StatusEffect {
	out := e
	if e.Modifiers != nil {
		out.Modifiers = make(map[Stat]float64, len(e.Modifiers))
		for k, v := range e.Modifiers {
			out.Modifiers[k] = v
		}
	}
	return out
}

// Move is an immutable move definition.
type Move struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Nature     Nature        `json:"nature"`
	Kind       MoveKind      `json:"kind"`
	Power      int           `json:"power"`
	Accuracy   float64       `json:"accuracy"`
	MaxUses    int           `json:"max_uses"`
	Priority   int           `json:"priority"`
	AlwaysCrit bool          `json:"always_crit"`
	Effect     *StatusEffect `json:"effect,omitempty"`
}

// Brotmon is an immutable species definition.
type Brotmon struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Emoji   string   `json:"emoji"`
	Natures []Nature `json:"natures"`
	MaxHP   int      `json:"max_hp"`
	Attack  int      `json:"attack"`
	Defense int      `json:"defense"`
	Speed   int      `json:"speed"`
	Moves   []string `json:"moves"`
}

// HasNature reports whether n is one of the species natures.
func (b *Brotmon) HasNature(n Nature) bool {
	for _, own := range b.Natures {
		if own == n {
			return true
		}
	}
	return false
}

const (
	maxMovesPerBrotmon = 4
	defaultMoveUses    = 10
)

// Loader holds the species and move catalog.
type Loader struct {
	// Dir overrides the embedded catalog when set. It must contain
	// brotmons.json and moves.json.
	Dir string

	brotmons     map[string]*Brotmon
	moves        map[string]*Move
	brotmonOrder []string
	moveOrder    []string
}

// NewLoader creates a Loader. An empty dir uses the embedded catalog.
func NewLoader(dir string) *Loader {
	return &Loader{
		Dir:      dir,
		brotmons: make(map[string]*Brotmon),
		moves:    make(map[string]*Move),
	}
}

// Load reads moves first, then species, then checks the cross references.
func (l *Loader) Load() error {
	fsys, err := l.source()
	if err != nil {
		return err
	}
	moves, err := loadJSONArray[Move](fsys, "moves.json")
	if err != nil {
		return err
	}
	for _, m := range moves {
		normalizeMove(m)
		if err := validateMove(m); err != nil {
			return err
		}
		if _, dup := l.moves[m.ID]; dup {
			return fmt.Errorf("resource: duplicate move id %q", m.ID)
		}
		l.moves[m.ID] = m
		l.moveOrder = append(l.moveOrder, m.ID)
	}

	species, err := loadJSONArray[Brotmon](fsys, "brotmons.json")
	if err != nil {
		return err
	}
	for _, b := range species {
		if err := l.validateBrotmon(b); err != nil {
			return err
		}
		if _, dup := l.brotmons[b.ID]; dup {
			return fmt.Errorf("resource: duplicate brotmon id %q", b.ID)
		}
		l.brotmons[b.ID] = b
		l.brotmonOrder = append(l.brotmonOrder, b.ID)
	}
	return nil
}

func (l *Loader) source() (fs.FS, error) {
	if l.Dir != "" {
		return os.DirFS(l.Dir), nil
	}
	sub, err := fs.Sub(embeddedData, "data")
	if err != nil {
		return nil, fmt.Errorf("resource: embedded catalog: %w", err)
	}
	return sub, nil
}

func loadJSONArray[T any](fsys fs.FS, name string) ([]*T, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("resource: read %s: %w", name, err)
	}
	var arr []*T
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("resource: parse %s: %w", name, err)
	}
	return arr, nil
}

// normalizeMove fills factory defaults. Accuracy above 1 is read as a
// percentage.
func normalizeMove(m *Move) {
	if m.Kind == "" {
		if m.Power > 0 {
			m.Kind = KindAttack
		} else {
			m.Kind = KindStatus
		}
	}
	if m.Kind == KindStatus {
		m.Power = 0
	}
	if m.Accuracy == 0 {
		m.Accuracy = 1
	} else if m.Accuracy > 1 {
		m.Accuracy /= 100
	}
	if m.MaxUses == 0 {
		m.MaxUses = defaultMoveUses
	}
	if m.Effect != nil && m.Effect.Name == "" {
		m.Effect.Name = EffectName(m.Effect.Type, m.Name)
	}
}

// EffectName builds the identity key of a move's effect, e.g.
// "BUFF-POWER-UP".
func EffectName(t EffectType, moveName string) string {
	return strings.ToUpper(string(t)) + "-" + strings.ReplaceAll(strings.ToUpper(moveName), " ", "-")
}

func validateMove(m *Move) error {
	switch {
	case m.ID == "" || m.Name == "":
		return fmt.Errorf("resource: move %q: id and name are required", m.ID)
	case !m.Nature.Valid():
		return fmt.Errorf("resource: move %q: unknown nature %q", m.ID, m.Nature)
	case m.Kind != KindAttack && m.Kind != KindStatus:
		return fmt.Errorf("resource: move %q: unknown kind %q", m.ID, m.Kind)
	case m.Accuracy < 0 || m.Accuracy > 1:
		return fmt.Errorf("resource: move %q: accuracy %v out of range", m.ID, m.Accuracy)
	case m.MaxUses < 0:
		return fmt.Errorf("resource: move %q: negative max uses", m.ID)
	}
	if e := m.Effect; e != nil {
		if !e.Type.Valid() {
			return fmt.Errorf("resource: move %q: unknown effect type %q", m.ID, e.Type)
		}
		if e.Chance < 0 || e.Chance > 1 {
			return fmt.Errorf("resource: move %q: effect chance %v out of range", m.ID, e.Chance)
		}
		if e.Duration < PermanentDuration || e.Duration == 0 {
			return fmt.Errorf("resource: move %q: invalid effect duration %d", m.ID, e.Duration)
		}
	}
	return nil
}

func (l *Loader) validateBrotmon(b *Brotmon) error {
	if b.ID == "" || b.Name == "" {
		return fmt.Errorf("resource: brotmon %q: id and name are required", b.ID)
	}
	if len(b.Natures) == 0 || len(b.Natures) > 2 {
		return fmt.Errorf("resource: brotmon %q: needs one or two natures", b.ID)
	}
	for _, n := range b.Natures {
		if !n.Valid() {
			return fmt.Errorf("resource: brotmon %q: unknown nature %q", b.ID, n)
		}
	}
	if b.MaxHP <= 0 || b.Attack <= 0 || b.Defense <= 0 || b.Speed <= 0 {
		return fmt.Errorf("resource: brotmon %q: stats must be positive", b.ID)
	}
	if len(b.Moves) == 0 || len(b.Moves) > maxMovesPerBrotmon {
		return fmt.Errorf("resource: brotmon %q: needs 1 to %d moves", b.ID, maxMovesPerBrotmon)
	}
	for _, id := range b.Moves {
		if _, ok := l.moves[id]; !ok {
			return fmt.Errorf("resource: brotmon %q: unknown move %q", b.ID, id)
		}
	}
	return nil
}

// ---- Lookups ----

// BrotmonByID returns the species with the given id, or nil.
func (l *Loader) BrotmonByID(id string) *Brotmon {
	return l.brotmons[id]
}

// MoveByID returns the move with the given id, or nil.
func (l *Loader) MoveByID(id string) *Move {
	return l.moves[id]
}

// Brotmons returns every species in catalog order.
func (l *Loader) Brotmons() []*Brotmon {
	out := make([]*Brotmon, 0, len(l.brotmonOrder))
	for _, id := range l.brotmonOrder {
		out = append(out, l.brotmons[id])
	}
	return out
}

// Moves returns every move in catalog order.
func (l *Loader) Moves() []*Move {
	out := make([]*Move, 0, len(l.moveOrder))
	for _, id := range l.moveOrder {
		out = append(out, l.moves[id])
	}
	return out
}
