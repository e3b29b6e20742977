package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/brotmon/game/match"
	mw "github.com/kasuganosora/brotmon/middleware"
	"go.uber.org/zap"
)

// TrainerHandler manages the trainers of the authenticated account.
type TrainerHandler struct {
	svc    *match.Service
	logger *zap.Logger
}

func NewTrainerHandler(svc *match.Service, logger *zap.Logger) *TrainerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrainerHandler{svc: svc, logger: logger}
}

// List handles GET /api/trainers.
func (h *TrainerHandler) List(c *gin.Context) {
	list, err := h.svc.Trainers(c.Request.Context(), mw.GetAccountID(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	if list == nil {
		list = []*match.Trainer{}
	}
	c.JSON(http.StatusOK, gin.H{"trainers": list})
}

type createTrainerRequest struct {
	Username string   `json:"username" binding:"required,max=32"`
	Emoji    string   `json:"emoji" binding:"max=16"`
	Brotmons []string `json:"brotmons" binding:"required"`
}

// Create handles POST /api/trainers.
func (h *TrainerHandler) Create(c *gin.Context) {
	var req createTrainerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := h.svc.CreateTrainer(c.Request.Context(), mw.GetAccountID(c), req.Username, req.Emoji, req.Brotmons)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"trainer": t})
}

// Get handles GET /api/trainers/:id.
func (h *TrainerHandler) Get(c *gin.Context) {
	t, err := h.svc.AuthorizeTrainer(c.Request.Context(), mw.GetAccountID(c), c.Param("id"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trainer": t})
}
