package match

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// Event types published on a battle channel.
const (
	EventJoined   = "joined"
	EventStarted  = "started"
	EventAction   = "action"
	EventTurn     = "turn"
	EventFinished = "finished"
)

// Event is the JSON message published after every committed change.
type Event struct {
	Type     string   `json:"type"`
	BattleID string   `json:"battle_id"`
	State    State    `json:"state"`
	Turn     int      `json:"turn"`
	Logs     []string `json:"logs,omitempty"`
	// TrainerID is the submitter of an "action" event.
	TrainerID string `json:"trainer_id,omitempty"`
	WinnerID  string `json:"winner_id,omitempty"`
	Draw      bool   `json:"draw,omitempty"`
}

// Publisher pushes events to subscribers. cache.PubSub satisfies it.
type Publisher interface {
	Publish(ctx context.Context, channel, message string) error
}

// EventChannel names the pub/sub channel of a battle.
func EventChannel(battleID string) string {
	return "battle:" + battleID
}

// publish logs delivery failures and never returns them.
func (s *Service) publish(ctx context.Context, ev Event) {
	if s.pub == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("marshal battle event", zap.String("battle_id", ev.BattleID), zap.Error(err))
		return
	}
	if err := s.pub.Publish(ctx, EventChannel(ev.BattleID), string(data)); err != nil {
		s.logger.Warn("publish battle event",
			zap.String("battle_id", ev.BattleID),
			zap.String("type", ev.Type),
			zap.Error(err))
	}
}

func commitEvent(c *TurnCommit) Event {
	ev := Event{BattleID: c.BattleID, Logs: c.Logs, Turn: c.Turn}
	if c.Finished() {
		ev.Type = EventFinished
		ev.State = StateFinished
		ev.WinnerID = c.Outcome.WinnerID
		ev.Draw = c.Outcome.Draw
		return ev
	}
	ev.Type = EventTurn
	ev.State = StateBattling
	return ev
}
