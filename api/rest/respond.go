package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/brotmon/api"
	mw "github.com/kasuganosora/brotmon/middleware"
	"go.uber.org/zap"
)

// fail writes err as {"error": ...} with the status it maps to.
// Internal errors are logged with the trace id and hidden from the client.
func fail(c *gin.Context, logger *zap.Logger, err error) {
	status := api.Status(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("trace_id", mw.GetTraceID(c)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": api.Message(err)})
}
