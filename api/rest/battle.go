package rest

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/brotmon/api"
	"github.com/kasuganosora/brotmon/audit"
	"github.com/kasuganosora/brotmon/game/battle"
	"github.com/kasuganosora/brotmon/game/match"
	mw "github.com/kasuganosora/brotmon/middleware"
	"go.uber.org/zap"
)

// BattleHandler exposes the battle lifecycle and read models.
type BattleHandler struct {
	svc    *match.Service
	audit  api.Auditor
	logger *zap.Logger
}

// NewBattleHandler creates a BattleHandler. A nil auditor skips auditing.
func NewBattleHandler(svc *match.Service, auditor api.Auditor, logger *zap.Logger) *BattleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BattleHandler{svc: svc, audit: auditor, logger: logger}
}

type trainerRequest struct {
	TrainerID string `json:"trainer_id" binding:"required"`
}

// Create handles POST /api/battles.
func (h *BattleHandler) Create(c *gin.Context) {
	var req trainerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	if _, err := h.svc.AuthorizeTrainer(ctx, mw.GetAccountID(c), req.TrainerID); err != nil {
		fail(c, h.logger, err)
		return
	}
	b, err := h.svc.CreateBattle(ctx, req.TrainerID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"battle": newBattleView(b)})
}

// Join handles POST /api/battles/:id/join.
func (h *BattleHandler) Join(c *gin.Context) {
	var req trainerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	if _, err := h.svc.AuthorizeTrainer(ctx, mw.GetAccountID(c), req.TrainerID); err != nil {
		fail(c, h.logger, err)
		return
	}
	b, err := h.svc.JoinBattle(ctx, c.Param("id"), req.TrainerID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"battle": newBattleView(b)})
}

type actionRequest struct {
	TrainerID string `json:"trainer_id" binding:"required"`
	Kind      string `json:"kind" binding:"required"`
	TargetID  string `json:"target_id"`
}

// Submit handles POST /api/battles/:id/actions.
func (h *BattleHandler) Submit(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start := time.Now()
	accountID := mw.GetAccountID(c)
	battleID := c.Param("id")

	res, err := h.submit(c, accountID, battleID, req)
	if h.audit != nil {
		h.audit.Log(audit.Entry{
			TraceID:    mw.GetTraceID(c),
			AccountID:  &accountID,
			TrainerID:  req.TrainerID,
			BattleID:   battleID,
			Action:     "battle." + req.Kind,
			Request:    req,
			Error:      err,
			IP:         c.ClientIP(),
			DurationMs: int(time.Since(start).Milliseconds()),
		})
	}
	if err != nil {
		h.logger.Debug("action rejected",
			zap.String("battle_id", battleID),
			zap.String("trainer_id", req.TrainerID),
			zap.String("action", req.Kind),
			zap.Error(err))
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *BattleHandler) submit(c *gin.Context, accountID int64, battleID string, req actionRequest) (*match.SubmitResult, error) {
	ctx := c.Request.Context()
	if _, err := h.svc.AuthorizeTrainer(ctx, accountID, req.TrainerID); err != nil {
		return nil, err
	}
	return h.svc.SubmitAction(ctx, battleID, req.TrainerID, battle.Action{
		Kind:     battle.ActionKind(req.Kind),
		TargetID: req.TargetID,
	})
}

// Get handles GET /api/battles/:id.
func (h *BattleHandler) Get(c *gin.Context) {
	b, err := h.svc.GetBattle(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"battle": newBattleView(b)})
}

type turnLogs struct {
	Turn  int      `json:"turn"`
	Lines []string `json:"lines"`
}

// Logs handles GET /api/battles/:id/logs.
func (h *BattleHandler) Logs(c *gin.Context) {
	lines, err := h.svc.Logs(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	turns := []turnLogs{}
	for _, l := range lines {
		if n := len(turns); n == 0 || turns[n-1].Turn != l.Turn {
			turns = append(turns, turnLogs{Turn: l.Turn})
		}
		last := &turns[len(turns)-1]
		last.Lines = append(last.Lines, l.Message)
	}
	c.JSON(http.StatusOK, gin.H{"battle_id": c.Param("id"), "turns": turns})
}

// battleView adds the trainers that already chose an action this turn.
// The actions themselves stay hidden from the opponent.
type battleView struct {
	*match.Battle
	Acted []string `json:"acted"`
}

func newBattleView(b *match.Battle) battleView {
	acted := make([]string, 0, len(b.Actions))
	for id := range b.Actions {
		acted = append(acted, id)
	}
	sort.Strings(acted)
	return battleView{Battle: b, Acted: acted}
}
