package match

import (
	"time"

	"github.com/kasuganosora/brotmon/game/battle"
	"github.com/kasuganosora/brotmon/resource"
)

// State is a battle's lifecycle position. Transitions only move forward:
// WAITING → READY → BATTLING → FINISHED.
type State string

const (
	StateWaiting  State = "WAITING"
	StateReady    State = "READY"
	StateBattling State = "BATTLING"
	StateFinished State = "FINISHED"
)

// MemberMove is a move instance owned by a roster member.
type MemberMove struct {
	ID          string `json:"id"`
	MoveID      string `json:"move_id"`
	CurrentUses int    `json:"current_uses"`
}

// Member is a persisted roster member.
type Member struct {
	ID        string                  `json:"id"`
	BrotmonID string                  `json:"brotmon_id"`
	Slot      int                     `json:"slot"`
	CurrentHP int                     `json:"current_hp"`
	Effects   []resource.StatusEffect `json:"effects"`
	Moves     []MemberMove            `json:"moves"`
}

// Trainer is an account's fighter: a roster in slot order plus a pointer
// to the active member.
type Trainer struct {
	ID        string    `json:"id"`
	AccountID int64     `json:"account_id"`
	Username  string    `json:"username"`
	Emoji     string    `json:"emoji"`
	ActiveID  string    `json:"active_id"`
	Roster    []Member  `json:"roster"`
	CreatedAt time.Time `json:"created_at"`
}

// Member returns the roster member with the given id, or nil.
func (t *Trainer) Member(id string) *Member {
	for i := range t.Roster {
		if t.Roster[i].ID == id {
			return &t.Roster[i]
		}
	}
	return nil
}

// Active returns the active roster member, or nil.
func (t *Trainer) Active() *Member {
	return t.Member(t.ActiveID)
}

// PendingAction is a trainer's recorded choice for a turn.
type PendingAction struct {
	TrainerID string            `json:"trainer_id"`
	Turn      int               `json:"turn"`
	Kind      battle.ActionKind `json:"kind"`
	TargetID  string            `json:"target_id"`
}

// Battle is the aggregate the service works on. Guest is nil while
// WAITING. Actions holds the pending actions of the current turn keyed
// by trainer id.
type Battle struct {
	ID         string                   `json:"id"`
	State      State                    `json:"state"`
	Turn       int                      `json:"turn"`
	Host       *Trainer                 `json:"host"`
	Guest      *Trainer                 `json:"guest,omitempty"`
	WinnerID   string                   `json:"winner_id,omitempty"`
	Draw       bool                     `json:"draw"`
	Actions    map[string]PendingAction `json:"-"`
	CreatedAt  time.Time                `json:"created_at"`
	UpdatedAt  time.Time                `json:"updated_at"`
	FinishedAt *time.Time               `json:"finished_at,omitempty"`
}

// Participant returns the battle's trainer with the given id, or nil.
func (b *Battle) Participant(trainerID string) *Trainer {
	switch {
	case b.Host != nil && b.Host.ID == trainerID:
		return b.Host
	case b.Guest != nil && b.Guest.ID == trainerID:
		return b.Guest
	}
	return nil
}

// Opponent returns the other trainer, or nil.
func (b *Battle) Opponent(trainerID string) *Trainer {
	switch {
	case b.Host != nil && b.Host.ID == trainerID:
		return b.Guest
	case b.Guest != nil && b.Guest.ID == trainerID:
		return b.Host
	}
	return nil
}

// LogLine is one narrative line of a battle.
type LogLine struct {
	Turn    int    `json:"turn"`
	Seq     int    `json:"seq"`
	Message string `json:"message"`
}
