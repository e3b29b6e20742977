package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kasuganosora/brotmon/api"
	"github.com/kasuganosora/brotmon/audit"
	"github.com/kasuganosora/brotmon/cache"
	"github.com/kasuganosora/brotmon/game/battle"
	"github.com/kasuganosora/brotmon/game/match"
	"go.uber.org/zap"
)

// BattleHandlers pushes battle events to sessions and takes actions.
type BattleHandlers struct {
	svc    *match.Service
	pubsub cache.PubSub
	audit  api.Auditor
	logger *zap.Logger
}

// NewBattleHandlers creates BattleHandlers. A nil auditor skips auditing.
func NewBattleHandlers(svc *match.Service, pubsub cache.PubSub, auditor api.Auditor, logger *zap.Logger) *BattleHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BattleHandlers{svc: svc, pubsub: pubsub, audit: auditor, logger: logger}
}

// RegisterHandlers registers all battle packet handlers on the router.
func (h *BattleHandlers) RegisterHandlers(r *Router) {
	r.On("battle_subscribe", h.HandleSubscribe)
	r.On("battle_unsubscribe", h.HandleUnsubscribe)
	r.On("battle_action", h.HandleAction)
	r.On("ping", h.HandlePing)
}

type battleRef struct {
	BattleID string `json:"battle_id"`
}

func decode(payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

// HandleSubscribe starts relaying a battle's events as "battle_event"
// packets and answers with the battle's current state.
func (h *BattleHandlers) HandleSubscribe(ctx context.Context, s *Session, payload json.RawMessage) error {
	var req battleRef
	if err := decode(payload, &req); err != nil {
		return err
	}
	if req.BattleID == "" {
		return fmt.Errorf("%w: battle_id is required", ErrBadPayload)
	}
	b, err := h.svc.GetBattle(ctx, req.BattleID)
	if err != nil {
		return err
	}

	subCtx, cancel := context.WithCancel(context.Background())
	msgs, unsub, err := h.pubsub.Subscribe(subCtx, match.EventChannel(b.ID))
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe %s: %w", b.ID, err)
	}
	stop := func() {
		unsub()
		cancel()
	}
	if !s.AddSubscription(b.ID, stop) {
		stop()
	} else {
		go h.relay(s, msgs)
		h.logger.Debug("battle subscribed",
			zap.String("battle_id", b.ID),
			zap.String("session_id", s.ID))
	}

	s.Reply("battle_subscribed", map[string]any{
		"battle_id": b.ID,
		"state":     b.State,
		"turn":      b.Turn,
	})
	return nil
}

func (h *BattleHandlers) relay(s *Session, msgs <-chan *cache.Message) {
	for msg := range msgs {
		if !json.Valid([]byte(msg.Payload)) {
			continue
		}
		s.Send(&Packet{Type: "battle_event", Payload: json.RawMessage(msg.Payload)})
	}
}

// HandleUnsubscribe stops relaying a battle's events.
func (h *BattleHandlers) HandleUnsubscribe(_ context.Context, s *Session, payload json.RawMessage) error {
	var req battleRef
	if err := decode(payload, &req); err != nil {
		return err
	}
	removed := s.RemoveSubscription(req.BattleID)
	s.Reply("battle_unsubscribed", map[string]any{"battle_id": req.BattleID, "removed": removed})
	return nil
}

type actionPayload struct {
	BattleID  string `json:"battle_id"`
	TrainerID string `json:"trainer_id"`
	Kind      string `json:"kind"`
	TargetID  string `json:"target_id"`
}

type actionResult struct {
	BattleID string `json:"battle_id"`
	*match.SubmitResult
}

// HandleAction submits an action for one of the session account's
// trainers and answers with a "battle_action_result" packet.
func (h *BattleHandlers) HandleAction(ctx context.Context, s *Session, payload json.RawMessage) error {
	var req actionPayload
	if err := decode(payload, &req); err != nil {
		return err
	}
	if req.BattleID == "" || req.TrainerID == "" {
		return fmt.Errorf("%w: battle_id and trainer_id are required", ErrBadPayload)
	}

	start := time.Now()
	res, err := h.submit(ctx, s, req)
	if h.audit != nil {
		accountID := s.AccountID
		h.audit.Log(audit.Entry{
			TraceID:    TraceIDFromCtx(ctx),
			AccountID:  &accountID,
			TrainerID:  req.TrainerID,
			BattleID:   req.BattleID,
			Action:     "battle." + req.Kind,
			Request:    req,
			Error:      err,
			DurationMs: int(time.Since(start).Milliseconds()),
		})
	}
	if err != nil {
		return err
	}
	s.Reply("battle_action_result", actionResult{BattleID: req.BattleID, SubmitResult: res})
	return nil
}

func (h *BattleHandlers) submit(ctx context.Context, s *Session, req actionPayload) (*match.SubmitResult, error) {
	if _, err := h.svc.AuthorizeTrainer(ctx, s.AccountID, req.TrainerID); err != nil {
		return nil, err
	}
	return h.svc.SubmitAction(ctx, req.BattleID, req.TrainerID, battle.Action{
		Kind:     battle.ActionKind(req.Kind),
		TargetID: req.TargetID,
	})
}

// HandlePing answers a client heartbeat.
func (h *BattleHandlers) HandlePing(_ context.Context, s *Session, payload json.RawMessage) error {
	var req struct {
		TS int64 `json:"ts"`
	}
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &req)
	}
	s.Reply("pong", map[string]any{"client_ts": req.TS, "server_ts": time.Now().UnixMilli()})
	return nil
}
