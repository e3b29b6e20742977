package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/brotmon/game/match"
	"github.com/kasuganosora/brotmon/scheduler"
	"go.uber.org/zap"
)

// AdminHandler handles operator endpoints.
// Routes should be protected by the IPWhitelist middleware.
type AdminHandler struct {
	sched  *scheduler.Scheduler
	svc    *match.Service
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(sched *scheduler.Scheduler, svc *match.Service, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{sched: sched, svc: svc, logger: logger}
}

// ListSchedulerTasks returns every ticker with its run stats.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.Tasks()})
}

// RunSchedulerTask runs a ticker immediately.
// POST /api/admin/scheduler/:name/run
func (h *AdminHandler) RunSchedulerTask(c *gin.Context) {
	name := c.Param("name")
	err := h.sched.RunNow(name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownTask):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown task"})
		return
	case err != nil:
		h.logger.Warn("admin task run failed", zap.String("task", name), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
		return
	}
	h.logger.Info("admin ran task", zap.String("task", name))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// PendingCommits lists computed turns that have not reached storage.
// GET /api/admin/pending-commits
func (h *AdminHandler) PendingCommits(c *gin.Context) {
	list := h.svc.PendingCommits()
	c.JSON(http.StatusOK, gin.H{"pending": list, "count": len(list)})
}

// RetryPendingCommits flushes the pending commits now.
// POST /api/admin/pending-commits/retry
func (h *AdminHandler) RetryPendingCommits(c *gin.Context) {
	n, err := h.svc.RetryPendingCommits(c.Request.Context())
	resp := gin.H{"committed": n, "remaining": len(h.svc.PendingCommits())}
	if err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}
