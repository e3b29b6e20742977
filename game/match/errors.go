package match

import "errors"

var (
	ErrBattleNotFound      = errors.New("match: battle not found")
	ErrTrainerNotFound     = errors.New("match: trainer not found")
	ErrInvalidBattleState  = errors.New("match: action not allowed in the current battle state")
	ErrTrainerNotInBattle  = errors.New("match: trainer is not part of this battle")
	ErrMissingActionTarget = errors.New("match: action needs a target id")
	ErrUnknownAction       = errors.New("match: unknown action kind")
	ErrInvalidTarget       = errors.New("match: action target is not valid for this trainer")
	ErrTrainerBusy         = errors.New("match: trainer already has a battle")
	ErrInvalidTeam         = errors.New("match: invalid team")
	ErrNotOwner            = errors.New("match: trainer belongs to another account")
	ErrStaleTurn           = errors.New("match: turn was already committed")
	ErrCommitPending       = errors.New("match: previous turn is not committed yet")
	ErrLockTimeout         = errors.New("match: timed out waiting for battle lock")
)
