// Package api holds what the REST and WebSocket transports share.
package api

import (
	"errors"
	"net/http"

	"github.com/kasuganosora/brotmon/game/match"
)

var statusOf = []struct {
	err    error
	status int
}{
	{match.ErrBattleNotFound, http.StatusNotFound},
	{match.ErrTrainerNotFound, http.StatusNotFound},
	{match.ErrNotOwner, http.StatusForbidden},
	{match.ErrTrainerNotInBattle, http.StatusForbidden},
	{match.ErrInvalidBattleState, http.StatusConflict},
	{match.ErrTrainerBusy, http.StatusConflict},
	{match.ErrStaleTurn, http.StatusConflict},
	{match.ErrMissingActionTarget, http.StatusBadRequest},
	{match.ErrUnknownAction, http.StatusBadRequest},
	{match.ErrInvalidTarget, http.StatusBadRequest},
	{match.ErrInvalidTeam, http.StatusBadRequest},
	{match.ErrLockTimeout, http.StatusServiceUnavailable},
	{match.ErrCommitPending, http.StatusServiceUnavailable},
}

// Status maps a service error onto an HTTP status. Unknown errors are 500.
func Status(err error) int {
	for _, s := range statusOf {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// Message is the client-facing text for err. Internal errors are not
// echoed.
func Message(err error) string {
	if Status(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
