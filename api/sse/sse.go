package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/brotmon/api"
	"github.com/kasuganosora/brotmon/cache"
	"github.com/kasuganosora/brotmon/game/match"
	"go.uber.org/zap"
)

// BattleLookup resolves the battle a stream is opened for.
// *match.Service satisfies it.
type BattleLookup interface {
	GetBattle(ctx context.Context, battleID string) (*match.Battle, error)
}

// Handler streams battle events as server-sent events.
type Handler struct {
	pubsub  cache.PubSub
	battles BattleLookup
	logger  *zap.Logger

	// Keepalive is the interval of comment lines that hold proxies open.
	Keepalive time.Duration
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, battles BattleLookup, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{pubsub: pubsub, battles: battles, logger: logger, Keepalive: 30 * time.Second}
}

type snapshot struct {
	BattleID string      `json:"battle_id"`
	State    match.State `json:"state"`
	Turn     int         `json:"turn"`
}

// ServeEvents handles GET /api/battles/:id/events.
// The first event is "connected" with the current state; every published
// match.Event follows under its own type as the event name.
func (h *Handler) ServeEvents(c *gin.Context) {
	battleID := c.Param("id")
	b, err := h.battles.GetBattle(c.Request.Context(), battleID)
	if err != nil {
		c.JSON(api.Status(err), gin.H{"error": api.Message(err)})
		return
	}

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()
	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, match.EventChannel(battleID))
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.String("battle_id", battleID), zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	hello, _ := json.Marshal(snapshot{BattleID: b.ID, State: b.State, Turn: b.Turn})
	writeEvent(c, "connected", string(hello))

	ticker := time.NewTicker(h.Keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			var ev match.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil || ev.Type == "" {
				h.logger.Warn("sse skipped malformed event", zap.String("battle_id", battleID), zap.Error(err))
				continue
			}
			writeEvent(c, ev.Type, msg.Payload)
			if ev.Type == match.EventFinished {
				return
			}

		case <-ticker.C:
			fmt.Fprint(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

func writeEvent(c *gin.Context, name, data string) {
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", name, data)
	c.Writer.Flush()
}
