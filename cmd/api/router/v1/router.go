package v1

import (
	cacheport "go-lounge/internal/infrastructure/cache/port"
	"go-lounge/internal/infrastructure/realtime"
	presence "go-lounge/internal/pkg/presence/application/domain"
	httpHandler "go-lounge/internal/pkg/presence/presentation/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RegisterRoutes mounts all version 1 API routes under /api/v1
func RegisterRoutes(r *gin.Engine, pool *pgxpool.Pool, cache cacheport.Cache, router *realtime.Router, timeouts presence.Timeouts) {
	v1 := r.Group("/api/v1")
	// Pass the shared infrastructure down to the HTTP layer
	httpHandler.RegisterRoutes(v1, pool, cache, router, timeouts)
}
