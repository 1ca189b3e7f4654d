package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Mossos12/AlemAuto/internal/backup"
	"github.com/Mossos12/AlemAuto/internal/cache"
	"github.com/Mossos12/AlemAuto/internal/config"
	"github.com/Mossos12/AlemAuto/internal/handler"
	"github.com/Mossos12/AlemAuto/internal/middleware"
	"github.com/Mossos12/AlemAuto/internal/service"
	"github.com/Mossos12/AlemAuto/internal/storage"
	"github.com/Mossos12/AlemAuto/internal/valuation"
	"github.com/Mossos12/AlemAuto/internal/worker"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Cache/Adapter/Snapshotter ← backend
func New(
	cfg *config.Config,
	adapter storage.Adapter,
	snaps backup.Snapshotter,
	oracle valuation.Oracle,
	dispatcher *worker.Dispatcher,
	health handler.HealthDeps,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(1000, time.Minute)) // 1000 req/min per IP

	// ── Services ─────────────────────────────────────────────────────────────
	readCache := cache.New(adapter, cfg.CacheTTL())
	inventorySvc := service.NewInventoryService(
		adapter, snaps, readCache, oracle, dispatcher,
		cfg.DefaultMarkupPct, cfg.ValuationTimeout(),
	)

	// ── Handlers ─────────────────────────────────────────────────────────────
	vehiclesH := handler.NewVehiclesHandler(inventorySvc)

	// ── Routes ───────────────────────────────────────────────────────────────
	r.GET("/health", handler.Health(health))

	v1 := r.Group("/v1")
	{
		v1.GET("/vehicles", vehiclesH.List)
		v1.POST("/vehicles", vehiclesH.Create)
		v1.GET("/vehicles/:vin", vehiclesH.Get)
		v1.PUT("/vehicles/:vin", vehiclesH.Update)
		v1.POST("/vehicles/:vin/sold", vehiclesH.MarkSold)

		v1.GET("/reports/sold", vehiclesH.SoldStats)
	}

	return r
}
