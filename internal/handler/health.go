package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"gorm.io/gorm"

	"github.com/Mossos12/AlemAuto/internal/infra"
)

// HealthDeps carries whatever infrastructure the selected backend uses.
// Nil members are simply not checked.
type HealthDeps struct {
	DB      *gorm.DB
	Mongo   *mongo.Database
	Redis   *redis.Client
	Breaker *infra.CircuitBreaker
}

// Health returns a JSON health check response.
// Checks backend and redis connectivity; never exposes credentials or internals.
func Health(deps HealthDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		out := gin.H{}
		ok := true

		if deps.DB != nil {
			status := "connected"
			sqlDB, err := deps.DB.DB()
			if err != nil || sqlDB.PingContext(ctx) != nil {
				status, ok = "error", false
			}
			out["db"] = status
		}
		if deps.Mongo != nil {
			status := "connected"
			if deps.Mongo.Client().Ping(ctx, readpref.Primary()) != nil {
				status, ok = "error", false
			}
			out["mongo"] = status
		}
		if deps.Redis != nil {
			status := "connected"
			if deps.Redis.Ping(ctx).Err() != nil {
				status, ok = "error", false
			}
			out["redis"] = status
		}
		if deps.Breaker != nil {
			out["valuation_breaker"] = deps.Breaker.State().String()
		}

		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		out["ok"] = ok
		c.JSON(status, out)
	}
}
