package battle

import "errors"

var (
	ErrActionIncomplete    = errors.New("battle: both sides need an action with a target")
	ErrUnsupportedAction   = errors.New("battle: action is not part of turn resolution")
	ErrCreatureNotFound    = errors.New("battle: roster member not found")
	ErrMoveNotFound        = errors.New("battle: move not found on active creature")
	ErrSwitchTargetFainted = errors.New("battle: switch target has fainted")
)
