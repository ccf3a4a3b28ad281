package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go-lounge/internal/infrastructure/realtime"
	presence "go-lounge/internal/pkg/presence/application/domain"
	"go-lounge/internal/pkg/presence/application/usecase"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// RoomController handles the room lifecycle endpoints: create, join (which
// is the only path that creates durable memberships) and explicit leave
// (the only realtime-side path that deletes them).
type RoomController struct {
	createUC *usecase.CreateRoomUseCase
	joinUC   *usecase.JoinRoomUseCase
	leaveUC  *usecase.LeaveRoomUseCase
	router   *realtime.Router
}

func NewRoomController(createUC *usecase.CreateRoomUseCase, joinUC *usecase.JoinRoomUseCase, leaveUC *usecase.LeaveRoomUseCase, router *realtime.Router) *RoomController {
	return &RoomController{createUC: createUC, joinUC: joinUC, leaveUC: leaveUC, router: router}
}

type createRoomRequest struct {
	Name            string `json:"name" binding:"required"`
	ExtendedSession bool   `json:"extended_session"`
}

type joinRoomRequest struct {
	UserKey     string `json:"user_key" binding:"required"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
	Color       string `json:"color"`
}

type leaveRoomRequest struct {
	UserKey string `json:"user_key" binding:"required"`
}

// Create handles POST /rooms.
func (h *RoomController) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createRoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		room, err := h.createUC.Execute(ctx, usecase.CreateRoomInput{
			Name:            req.Name,
			ExtendedSession: req.ExtendedSession,
		})
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, usecase.ErrPersistence) {
				status = http.StatusInternalServerError
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"id":               room.ID,
			"name":             room.Name,
			"extended_session": room.ExtendedSession,
			"created_at":       room.CreatedAt,
		})
	}
}

// Join handles POST /rooms/:roomId/join.
func (h *RoomController) Join() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req joinRoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		m, err := h.joinUC.Execute(ctx, usecase.JoinRoomInput{
			RoomID:      c.Param("roomId"),
			UserKey:     req.UserKey,
			DisplayName: req.DisplayName,
			Avatar:      req.Avatar,
			Color:       req.Color,
		})
		if err != nil {
			switch {
			case errors.Is(err, presence.ErrRoomNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "room does not exist"})
			case errors.Is(err, usecase.ErrPersistence):
				c.JSON(http.StatusInternalServerError, gin.H{"error": "unexpected persistence error"})
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			}
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"room_id":   m.RoomID,
			"user_key":  m.UserKey,
			"is_host":   m.IsHost,
			"joined_at": m.JoinedAt,
		})
	}
}

// Leave handles POST /rooms/:roomId/leave: deletes the durable row and
// kicks any live socket the user still holds, then notifies peers.
func (h *RoomController) Leave() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req leaveRoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		roomID := c.Param("roomId")

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		res, err := h.leaveUC.Execute(ctx, usecase.LeaveRoomInput{RoomID: roomID, UserKey: req.UserKey})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "unexpected persistence error"})
			return
		}

		if res.Removed && h.router != nil {
			// Only kick a socket that is actually sitting in this room; the
			// user may hold a live connection in a different room.
			if h.router.UserRoom(req.UserKey) == roomID {
				h.router.KickUser(req.UserKey, websocket.CloseNormalClosure, "left room")
			}
			ev := gin.H{"type": "user_left", "user_key": req.UserKey, "users": h.router.RoomUserKeys(roomID)}
			if payload, err := json.Marshal(ev); err == nil {
				h.router.Broadcast(roomID, payload, req.UserKey)
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"removed":      res.Removed,
			"new_host":     res.NewHostKey,
			"room_deleted": res.RoomDeleted,
		})
	}
}
