package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/brotmon/api"
	"github.com/kasuganosora/brotmon/cache"
	"github.com/kasuganosora/brotmon/config"
	"github.com/kasuganosora/brotmon/game/match"
	mw "github.com/kasuganosora/brotmon/middleware"
	"github.com/kasuganosora/brotmon/resource"
	"github.com/kasuganosora/brotmon/scheduler"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps is everything the REST routes need.
type Deps struct {
	DB        *gorm.DB
	Cache     cache.Cache
	Security  config.SecurityConfig
	AdminIPs  []string
	Catalog   *resource.Loader
	Service   *match.Service
	Scheduler *scheduler.Scheduler
	Audit     api.Auditor
	Logger    *zap.Logger
}

// Register mounts the REST API under g, normally the /api group.
func Register(g *gin.RouterGroup, d Deps) {
	auth := mw.Auth(d.Security, d.Cache)

	authH := NewAuthHandler(d.DB, d.Cache, d.Security, d.Logger)
	authG := g.Group("/auth")
	authG.POST("/login", authH.Login)
	authG.POST("/logout", auth, authH.Logout)
	authG.POST("/refresh", auth, authH.Refresh)

	catH := NewCatalogHandler(d.Catalog)
	catG := g.Group("/catalog")
	catG.GET("/brotmons", catH.Brotmons)
	catG.GET("/brotmons/:id", catH.Brotmon)
	catG.GET("/moves", catH.Moves)

	trH := NewTrainerHandler(d.Service, d.Logger)
	trG := g.Group("/trainers", auth)
	trG.GET("", trH.List)
	trG.POST("", trH.Create)
	trG.GET("/:id", trH.Get)

	bH := NewBattleHandler(d.Service, d.Audit, d.Logger)
	bG := g.Group("/battles", auth)
	bG.POST("", bH.Create)
	bG.GET("/:id", bH.Get)
	bG.GET("/:id/logs", bH.Logs)
	bG.POST("/:id/join", bH.Join)
	bG.POST("/:id/actions", bH.Submit)

	if d.Scheduler != nil {
		adminH := NewAdminHandler(d.Scheduler, d.Service, d.Logger)
		adminG := g.Group("/admin", mw.IPWhitelist(d.AdminIPs))
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
		adminG.POST("/scheduler/:name/run", adminH.RunSchedulerTask)
		adminG.GET("/pending-commits", adminH.PendingCommits)
		adminG.POST("/pending-commits/retry", adminH.RetryPendingCommits)
	}
}
