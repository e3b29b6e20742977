package match

import (
	"context"

	"github.com/kasuganosora/brotmon/game/battle"
)

// TrainerState is the post-turn state of one side.
type TrainerState struct {
	TrainerID string
	ActiveID  string
	Roster    []Member
}

// TurnCommit is everything a resolved turn (or a forfeit) writes. It is
// computed once and may be committed more than once until it succeeds.
type TurnCommit struct {
	BattleID string
	Turn     int
	Trainers []TrainerState
	Logs     []string
	// Advance moves the battle to Turn+1. Forfeits leave the counter.
	Advance bool
	Outcome *battle.Outcome
}

// Finished reports whether committing ends the battle.
func (c *TurnCommit) Finished() bool {
	return c.Outcome != nil
}

// Repository is the persistence capability the service needs.
type Repository interface {
	InsertTrainer(ctx context.Context, t *Trainer) error
	// GetTrainer returns ErrTrainerNotFound for an unknown id.
	GetTrainer(ctx context.Context, id string) (*Trainer, error)
	ListTrainers(ctx context.Context, accountID int64) ([]*Trainer, error)
	// TrainerHasBattle reports whether the trainer was ever seated in a
	// battle, finished or not.
	TrainerHasBattle(ctx context.Context, trainerID string) (bool, error)

	InsertBattle(ctx context.Context, b *Battle) error
	// LoadBattle returns the battle with both trainers, their rosters and
	// the pending actions of the current turn, or ErrBattleNotFound.
	LoadBattle(ctx context.Context, id string) (*Battle, error)
	// SetGuest moves WAITING → READY, or fails with ErrInvalidBattleState.
	SetGuest(ctx context.Context, battleID, guestID string) error
	// StartBattle moves READY → BATTLING and opens turn 1, or fails with
	// ErrInvalidBattleState.
	StartBattle(ctx context.Context, battleID string) error
	// SavePendingAction records or replaces a trainer's action.
	SavePendingAction(ctx context.Context, battleID string, a PendingAction) error
	// CommitTurn applies c atomically. It fails with ErrStaleTurn when the
	// battle is no longer BATTLING at c.Turn.
	CommitTurn(ctx context.Context, c *TurnCommit) error
	ListLogs(ctx context.Context, battleID string) ([]LogLine, error)
}
