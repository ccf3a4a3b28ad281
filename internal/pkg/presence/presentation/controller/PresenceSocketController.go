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

// connState is the explicit per-connection state machine:
// unauthenticated -> joined (authenticated with a room) -> left (still
// authenticated, no room). Closing is terminal and handled by the read loop
// unwinding.
type connState int

const (
	stateUnauthenticated connState = iota
	stateJoined
	stateLeft
)

// PresenceSocketController handles the websocket endpoint for realtime
// presence and chat traffic.
type PresenceSocketController struct {
	router          *realtime.Router
	authUC          *usecase.AuthenticateUseCase
	sendMessageUC   *usecase.SendMessageUseCase
	recordUC        *usecase.RecordActivityUseCase
	inflightTimeout time.Duration
}

func NewPresenceSocketController(
	router *realtime.Router,
	authUC *usecase.AuthenticateUseCase,
	sendMessageUC *usecase.SendMessageUseCase,
	recordUC *usecase.RecordActivityUseCase,
) *PresenceSocketController {
	return &PresenceSocketController{
		router:          router,
		authUC:          authUC,
		sendMessageUC:   sendMessageUC,
		recordUC:        recordUC,
		inflightTimeout: 5 * time.Second,
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for now; plug a proper checker when auth is added.
		return true
	},
}

type inboundFrame struct {
	Type    string  `json:"type"`
	UserKey string  `json:"user_key,omitempty"`
	RoomID  string  `json:"room_id,omitempty"`
	Text    string  `json:"text,omitempty"`
	ReplyTo *string `json:"reply_to,omitempty"`
	Kind    string  `json:"kind,omitempty"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type memberPayload struct {
	UserKey     string     `json:"user_key"`
	DisplayName string     `json:"display_name"`
	Avatar      string     `json:"avatar"`
	Color       string     `json:"color"`
	IsAFK       bool       `json:"is_afk"`
	AFKSince    *time.Time `json:"afk_since,omitempty"`
	IsHost      bool       `json:"is_host"`
}

type authSuccessFrame struct {
	Type       string          `json:"type"`
	Membership memberPayload   `json:"membership"`
	Users      []memberPayload `json:"users"`
}

type authErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type roomEventFrame struct {
	Type    string   `json:"type"`
	UserKey string   `json:"user_key"`
	Users   []string `json:"users"`
}

type typingFrame struct {
	Type    string `json:"type"`
	UserKey string `json:"user_key"`
	RoomID  string `json:"room_id"`
}

type outboundMessage struct {
	Type    string         `json:"type"`
	RoomID  string         `json:"room_id"`
	Message messagePayload `json:"message"`
}

type messagePayload struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id"`
	SenderKey   string    `json:"sender_key"`
	DisplayName string    `json:"display_name"`
	Avatar      string    `json:"avatar"`
	Color       string    `json:"color"`
	Text        string    `json:"text"`
	ReplyTo     *string   `json:"reply_to,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

const defaultReadTimeout = 60 * time.Second

// Handle upgrades HTTP connections to websocket and processes frames until the client disconnects.
func (ctl *PresenceSocketController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the response; nothing more to do.
			return
		}

		var (
			conn   *realtime.Connection
			state  = stateUnauthenticated
			roomID string
		)
		defer func() {
			// Transport-level close: in-memory cleanup and peer notification
			// only. The durable membership row deliberately survives — a
			// dropped socket is exactly the ambiguous case the sweep
			// resolves after the grace period.
			if conn != nil {
				left := ctl.router.Detach(conn)
				if left != "" && state == stateJoined {
					ctl.broadcastRoomEvent(left, "user_left", conn.UserKey)
				}
				conn.Close(websocket.CloseNormalClosure, "session closed")
			} else {
				_ = ws.Close()
			}
		}()

		ws.SetReadLimit(1 << 20) // 1MB payload cap
		_ = ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		ws.SetPongHandler(func(string) error {
			if conn != nil {
				conn.Touch()
			}
			return ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		})

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			_ = ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
			if conn != nil {
				conn.Touch()
			}

			var frame inboundFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				ctl.replyRaw(ws, conn, errorFrame{Type: "error", Code: "bad_request", Error: "invalid payload"})
				continue
			}

			switch frame.Type {
			case "authenticate":
				if state != stateUnauthenticated && state != stateLeft {
					ctl.replyRaw(ws, conn, errorFrame{Type: "error", Code: "bad_state", Error: "already authenticated"})
					continue
				}
				if ctl.handleAuthenticate(c, ws, &conn, frame) {
					state = stateJoined
					roomID = frame.RoomID
				}
			case "send_message":
				if state != stateJoined {
					ctl.replyRaw(ws, conn, errorFrame{Type: "error", Code: "bad_state", Error: "authenticate first"})
					continue
				}
				ctl.handleSendMessage(c, conn, roomID, frame)
			case "activity":
				if state != stateJoined {
					ctl.replyRaw(ws, conn, errorFrame{Type: "error", Code: "bad_state", Error: "authenticate first"})
					continue
				}
				ctl.handleActivity(c, conn, roomID, frame)
			case "leave_room":
				if state != stateJoined {
					ctl.replyRaw(ws, conn, errorFrame{Type: "error", Code: "bad_state", Error: "not in a room"})
					continue
				}
				ctl.handleLeaveRoom(conn)
				state = stateLeft
				roomID = ""
			default:
				ctl.replyRaw(ws, conn, errorFrame{Type: "error", Code: "unsupported_type", Error: "unknown frame type"})
			}
		}
	}
}

// handleAuthenticate verifies the claimed membership against the store and,
// on success, registers the socket. A second live socket for the same user
// key supersedes the first. The server never creates membership rows here.
func (ctl *PresenceSocketController) handleAuthenticate(c *gin.Context, ws *websocket.Conn, conn **realtime.Connection, frame inboundFrame) bool {
	if frame.UserKey == "" || frame.RoomID == "" {
		ctl.replyRaw(ws, *conn, authErrorFrame{Type: "auth_error", Message: "user_key and room_id are required"})
		return false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.inflightTimeout)
	defer cancel()

	res, err := ctl.authUC.Execute(ctx, usecase.AuthenticateInput{UserKey: frame.UserKey, RoomID: frame.RoomID})
	if err != nil {
		msg := "authentication failed"
		if errors.Is(err, presence.ErrNotMember) {
			msg = "no membership for this room"
		}
		ctl.replyRaw(ws, *conn, authErrorFrame{Type: "auth_error", Message: msg})
		return false
	}

	if *conn != nil && (*conn).UserKey != frame.UserKey {
		ctl.replyRaw(ws, *conn, authErrorFrame{Type: "auth_error", Message: "connection is bound to another user"})
		return false
	}
	if *conn == nil {
		*conn = realtime.NewConnection(frame.UserKey, ws)
		ctl.router.Attach(*conn)
	}
	ctl.router.Join(frame.RoomID, *conn)

	_ = ctl.recordUC.Execute(ctx, usecase.RecordActivityInput{
		UserKey: frame.UserKey,
		RoomID:  frame.RoomID,
		Kind:    "connect",
	})

	ack := authSuccessFrame{
		Type:       "auth_success",
		Membership: toMemberPayload(res.Membership),
		Users:      make([]memberPayload, 0, len(res.Roster)),
	}
	for _, m := range res.Roster {
		ack.Users = append(ack.Users, toMemberPayload(m))
	}
	if payload, err := json.Marshal(ack); err == nil {
		_ = (*conn).Send(payload)
	}

	ctl.broadcastRoomEvent(frame.RoomID, "user_joined", frame.UserKey)
	return true
}

// handleSendMessage persists then relays. The sender receives the relayed
// copy too, so everyone observes the same server ordering. Rejected frames
// mutate nothing: activity is recorded only after the message is accepted.
func (ctl *PresenceSocketController) handleSendMessage(c *gin.Context, conn *realtime.Connection, roomID string, frame inboundFrame) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.inflightTimeout)
	defer cancel()

	msg, err := ctl.sendMessageUC.Execute(ctx, usecase.SendMessageInput{
		RoomID:    roomID,
		SenderKey: conn.UserKey,
		Text:      frame.Text,
		ReplyTo:   frame.ReplyTo,
	})
	if err != nil {
		switch {
		case errors.Is(err, presence.ErrEmptyMessage):
			ctl.reply(conn, errorFrame{Type: "error", Code: "empty_message", Error: "message text is empty"})
		case errors.Is(err, presence.ErrNotMember):
			ctl.reply(conn, errorFrame{Type: "error", Code: "forbidden", Error: "no membership for this room"})
		case errors.Is(err, usecase.ErrPersistence):
			ctl.reply(conn, errorFrame{Type: "error", Code: "internal_error", Error: "message could not be saved"})
		default:
			ctl.reply(conn, errorFrame{Type: "error", Code: "bad_request", Error: err.Error()})
		}
		return
	}

	_ = ctl.recordUC.Execute(ctx, usecase.RecordActivityInput{
		UserKey: conn.UserKey,
		RoomID:  roomID,
		Kind:    "message",
	})

	out := outboundMessage{Type: "new_message", RoomID: roomID, Message: toMessagePayload(*msg)}
	if payload, err := json.Marshal(out); err == nil {
		ctl.router.Broadcast(roomID, payload, "")
	}
}

// handleActivity touches last-activity; typing additionally relays an
// ephemeral indicator without any further durable state.
func (ctl *PresenceSocketController) handleActivity(c *gin.Context, conn *realtime.Connection, roomID string, frame inboundFrame) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.inflightTimeout)
	defer cancel()

	if err := ctl.recordUC.Execute(ctx, usecase.RecordActivityInput{
		UserKey: conn.UserKey,
		RoomID:  roomID,
		Kind:    frame.Kind,
	}); err != nil && errors.Is(err, usecase.ErrPersistence) {
		ctl.reply(conn, errorFrame{Type: "error", Code: "internal_error", Error: "activity could not be recorded"})
		return
	}

	if frame.Kind == "typing" {
		ev := typingFrame{Type: "user_typing", UserKey: conn.UserKey, RoomID: roomID}
		if payload, err := json.Marshal(ev); err == nil {
			ctl.router.Broadcast(roomID, payload, conn.UserKey)
		}
	}
}

// handleLeaveRoom clears in-memory state and notifies peers. The durable
// row stays; deleting it belongs to the HTTP leave endpoint.
func (ctl *PresenceSocketController) handleLeaveRoom(conn *realtime.Connection) {
	roomID := ctl.router.Leave(conn)
	if roomID == "" {
		return
	}
	ctl.broadcastRoomEvent(roomID, "user_left", conn.UserKey)
}

func (ctl *PresenceSocketController) broadcastRoomEvent(roomID, eventType, userKey string) {
	ev := roomEventFrame{
		Type:    eventType,
		UserKey: userKey,
		Users:   ctl.router.RoomUserKeys(roomID),
	}
	if payload, err := json.Marshal(ev); err == nil {
		ctl.router.Broadcast(roomID, payload, userKey)
	}
}

// reply sends a frame through the connection's write loop.
func (ctl *PresenceSocketController) reply(conn *realtime.Connection, frame any) {
	if payload, err := json.Marshal(frame); err == nil {
		_ = conn.Send(payload)
	}
}

// replyRaw sends a frame even before a Connection exists, writing straight
// to the socket during the unauthenticated phase.
func (ctl *PresenceSocketController) replyRaw(ws *websocket.Conn, conn *realtime.Connection, frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	if conn != nil {
		_ = conn.Send(payload)
		return
	}
	_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = ws.WriteMessage(websocket.TextMessage, payload)
}

func toMemberPayload(m presence.Membership) memberPayload {
	return memberPayload{
		UserKey:     m.UserKey,
		DisplayName: m.DisplayName,
		Avatar:      m.Avatar,
		Color:       m.Color,
		IsAFK:       m.IsAFK,
		AFKSince:    m.AFKSince,
		IsHost:      m.IsHost,
	}
}

func toMessagePayload(m presence.Message) messagePayload {
	return messagePayload{
		ID:          m.ID,
		RoomID:      m.RoomID,
		SenderKey:   m.SenderKey,
		DisplayName: m.DisplayName,
		Avatar:      m.Avatar,
		Color:       m.Color,
		Text:        m.Text,
		ReplyTo:     m.ReplyTo,
		CreatedAt:   m.CreatedAt,
	}
}
