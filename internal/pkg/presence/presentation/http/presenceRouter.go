package http

import (
	cacheport "go-lounge/internal/infrastructure/cache/port"
	"go-lounge/internal/infrastructure/realtime"
	presence "go-lounge/internal/pkg/presence/application/domain"
	"go-lounge/internal/pkg/presence/application/usecase"
	"go-lounge/internal/pkg/presence/persistence/repository/adapter"
	"go-lounge/internal/pkg/presence/presentation/controller"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RegisterRoutes registers presence-related HTTP endpoints under the given
// router group. It constructs per-endpoint controllers and binds them
// directly to routes.
func RegisterRoutes(g *gin.RouterGroup, pool *pgxpool.Pool, cache cacheport.Cache, router *realtime.Router, timeouts presence.Timeouts) {
	members := adapter.NewPgMembershipRepository(pool)
	messages := adapter.NewPgMessageRepository(pool)

	recordUC := usecase.NewRecordActivityUseCase(members, cache, timeouts)
	afkUC := usecase.NewSetManualAFKUseCase(members)
	createUC := usecase.NewCreateRoomUseCase(members)
	joinUC := usecase.NewJoinRoomUseCase(members)
	leaveUC := usecase.NewLeaveRoomUseCase(members)
	authUC := usecase.NewAuthenticateUseCase(members)
	sendMsgUC := usecase.NewSendMessageUseCase(members, messages)
	getMsgUC := usecase.NewGetMessageUseCase(messages)
	sweepUC := usecase.NewRunSweepUseCase(members, timeouts)
	onlineUC := usecase.NewListOnlineUseCase(cache)

	roomCtl := controller.NewRoomController(createUC, joinUC, leaveUC, router)
	activityCtl := controller.NewActivityController(recordUC, afkUC)
	getMsgCtl := controller.NewGetMessageController(getMsgUC)
	socketCtl := controller.NewPresenceSocketController(router, authUC, sendMsgUC, recordUC)
	sweepCtl := controller.NewSweepController(sweepUC)
	healthCtl := controller.NewHealthController(router, onlineUC)

	// Rooms: durable membership lifecycle.
	g.POST("/rooms", roomCtl.Create())
	g.POST("/rooms/:roomId/join", roomCtl.Join())
	g.POST("/rooms/:roomId/leave", roomCtl.Leave())

	// Activity write path, shared by socket-less clients.
	g.POST("/rooms/:roomId/heartbeat", activityCtl.Heartbeat())
	g.POST("/rooms/:roomId/afk", activityCtl.SetAFK())
	g.POST("/activity", activityCtl.Activity())

	// Message history.
	g.GET("/rooms/:roomId/messages", getMsgCtl.Handle())

	// Realtime socket endpoint.
	g.GET("/presence/ws", socketCtl.Handle())

	// Read-only presence views.
	g.GET("/presence/health", healthCtl.Health())
	g.GET("/presence/online", healthCtl.Online())

	// Operator-only immediate sweep.
	g.POST("/admin/sweep", OperatorGuard(), sweepCtl.Handle())
}
