package controller

import (
	"context"
	"net/http"
	"time"

	"go-lounge/internal/infrastructure/realtime"
	"go-lounge/internal/pkg/presence/application/usecase"

	"github.com/gin-gonic/gin"
)

// HealthController reports the in-process socket index and the advisory
// lounge-wide online view. Neither endpoint touches the durable store.
type HealthController struct {
	Router   *realtime.Router
	OnlineUC *usecase.ListOnlineUseCase
}

func NewHealthController(router *realtime.Router, onlineUC *usecase.ListOnlineUseCase) *HealthController {
	return &HealthController{Router: router, OnlineUC: onlineUC}
}

func (h *HealthController) Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := h.Router.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"connections": snap.Connections,
			"rooms":       snap.Rooms,
		})
	}
}

func (h *HealthController) Online() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		users, err := h.OnlineUC.Execute(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"online": users, "count": len(users)})
	}
}
