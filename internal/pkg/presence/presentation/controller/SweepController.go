package controller

import (
	"context"
	"net/http"
	"time"

	"go-lounge/internal/pkg/presence/application/usecase"

	"github.com/gin-gonic/gin"
)

// SweepController exposes an operator trigger for an immediate sweep, in
// addition to the scheduled runs. Useful after a deploy or an incident.
type SweepController struct {
	UC *usecase.RunSweepUseCase
}

func NewSweepController(uc *usecase.RunSweepUseCase) *SweepController {
	return &SweepController{UC: uc}
}

func (h *SweepController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
		defer cancel()

		summary, err := h.UC.Execute(ctx)
		payload := gin.H{
			"users_afk":          summary.UsersAFK,
			"users_disconnected": summary.UsersDisconnected,
			"hosts_transferred":  summary.HostsTransferred,
			"rooms_deleted":      summary.RoomsDeleted,
		}
		if err != nil {
			// Partial summary still reports what did succeed.
			payload["error"] = err.Error()
			c.JSON(http.StatusInternalServerError, payload)
			return
		}
		c.JSON(http.StatusOK, payload)
	}
}
