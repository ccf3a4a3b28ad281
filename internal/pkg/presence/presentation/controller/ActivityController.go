package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	presence "go-lounge/internal/pkg/presence/application/domain"
	"go-lounge/internal/pkg/presence/application/usecase"

	"github.com/gin-gonic/gin"
)

// ActivityController exposes the activity recorder to stateless HTTP
// callers: heartbeat, generic activity, and the manual AFK toggle.
type ActivityController struct {
	recordUC *usecase.RecordActivityUseCase
	afkUC    *usecase.SetManualAFKUseCase
}

func NewActivityController(recordUC *usecase.RecordActivityUseCase, afkUC *usecase.SetManualAFKUseCase) *ActivityController {
	return &ActivityController{recordUC: recordUC, afkUC: afkUC}
}

type activityRequest struct {
	UserKey string `json:"user_key" binding:"required"`
	Kind    string `json:"kind"`
}

type manualAFKRequest struct {
	UserKey string `json:"user_key" binding:"required"`
	AFK     *bool  `json:"afk" binding:"required"`
}

// Heartbeat handles POST /rooms/:roomId/heartbeat.
func (h *ActivityController) Heartbeat() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req activityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		kind := req.Kind
		if kind == "" {
			kind = "heartbeat"
		}
		h.record(c, usecase.RecordActivityInput{
			UserKey: req.UserKey,
			RoomID:  c.Param("roomId"),
			Kind:    kind,
		})
	}
}

// Activity handles POST /activity: account-level touch without a room.
func (h *ActivityController) Activity() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req activityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.record(c, usecase.RecordActivityInput{UserKey: req.UserKey, Kind: req.Kind})
	}
}

// SetAFK handles POST /rooms/:roomId/afk.
func (h *ActivityController) SetAFK() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req manualAFKRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		err := h.afkUC.Execute(ctx, usecase.SetManualAFKInput{
			RoomID:  c.Param("roomId"),
			UserKey: req.UserKey,
			AFK:     *req.AFK,
		})
		if err != nil {
			writeRecorderError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (h *ActivityController) record(c *gin.Context, in usecase.RecordActivityInput) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := h.recordUC.Execute(ctx, in); err != nil {
		writeRecorderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func writeRecorderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, presence.ErrNotMember):
		c.JSON(http.StatusNotFound, gin.H{"error": "no membership for this room"})
	case errors.Is(err, usecase.ErrPersistence):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unexpected persistence error"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
