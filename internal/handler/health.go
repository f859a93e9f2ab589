package handler

import (
	"context"
	"net/http"
	"time"

	"vallenar/internal/infra"
	"vallenar/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Health returns a JSON health check response.
// Checks DB and Redis connectivity; never exposes credentials or internals.
// The relay breaker state and outbox backlog are informational only.
func Health(db *gorm.DB, rdb *redis.Client, cb *infra.CircuitBreaker, outbox repository.OutboxRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		dbStatus := "connected"
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(ctx) != nil {
			dbStatus = "error"
		}

		redisStatus := "connected"
		if rdb.Ping(ctx).Err() != nil {
			redisStatus = "error"
		}

		status := http.StatusOK
		if dbStatus != "connected" || redisStatus != "connected" {
			status = http.StatusServiceUnavailable
		}

		body := gin.H{
			"ok":    status == http.StatusOK,
			"db":    dbStatus,
			"redis": redisStatus,
		}
		if cb != nil {
			body["relay"] = cb.State().String()
		}
		if outbox != nil && dbStatus == "connected" {
			if n, err := outbox.CountPending(ctx); err == nil {
				body["outbox_pendientes"] = n
			}
		}
		c.JSON(status, body)
	}
}
