package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Close codes used when the router evicts a connection.
const (
	CloseSessionReplaced = 4001
	CloseLivenessTimeout = 4002
)

// Snapshot is the router's instantaneous view for operational monitoring.
type Snapshot struct {
	Connections int            `json:"connections"`
	Rooms       map[string]int `json:"rooms"`
}

// Router is the per-process registry of live sockets: socket ↔ user ↔ room.
// It keeps one active Connection per user key and one room per connection,
// matching the connection state machine (authenticated, optionally joined).
// It is purely in-memory bookkeeping; durable membership rows are owned by
// the store.
type Router struct {
	mu           sync.RWMutex
	sessions     map[string]*Connection // sessionID -> connection
	userSessions map[string]string      // userKey -> sessionID
	rooms        map[string]map[string]*Connection
	sessionRoom  map[string]string // sessionID -> roomID
}

// NewRouter constructs an initialized Router.
func NewRouter() *Router {
	return &Router{
		sessions:     make(map[string]*Connection),
		userSessions: make(map[string]string),
		rooms:        make(map[string]map[string]*Connection),
		sessionRoom:  make(map[string]string),
	}
}

// Attach registers a connection for the given user. If a previous session exists,
// it is removed and closed after the swap to enforce one active socket per user.
func (r *Router) Attach(conn *Connection) {
	var previous *Connection

	r.mu.Lock()
	if existingID, ok := r.userSessions[conn.UserKey]; ok {
		if existing := r.sessions[existingID]; existing != nil {
			previous = existing
			r.detachLocked(existingID)
		}
	}

	r.sessions[conn.ID] = conn
	r.userSessions[conn.UserKey] = conn.ID
	r.mu.Unlock()

	conn.Start()

	if previous != nil {
		previous.Close(CloseSessionReplaced, "session replaced")
	}
}

// Detach removes a connection if it is still tracked. It returns the room
// the connection occupied, if any, so callers can notify remaining peers.
func (r *Router) Detach(conn *Connection) (roomID string) {
	r.mu.Lock()
	roomID = r.sessionRoom[conn.ID]
	r.detachLocked(conn.ID)
	r.mu.Unlock()
	return roomID
}

// Join places the connection in the room. A connection occupies at most one
// room; joining a second room implicitly leaves the first.
func (r *Router) Join(roomID string, conn *Connection) {
	r.mu.Lock()
	if _, ok := r.sessions[conn.ID]; !ok {
		r.mu.Unlock()
		return
	}

	if current, ok := r.sessionRoom[conn.ID]; ok && current != roomID {
		r.leaveLocked(current, conn.ID)
	}

	room := r.rooms[roomID]
	if room == nil {
		room = make(map[string]*Connection)
		r.rooms[roomID] = room
	}
	room[conn.ID] = conn
	r.sessionRoom[conn.ID] = roomID
	r.mu.Unlock()
}

// Leave removes the connection from its room and reports which room it was.
func (r *Router) Leave(conn *Connection) (roomID string) {
	r.mu.Lock()
	roomID = r.sessionRoom[conn.ID]
	if roomID != "" {
		r.leaveLocked(roomID, conn.ID)
	}
	r.mu.Unlock()
	return roomID
}

// Broadcast writes payload to all members in the room.
// excludeUserKey, when non-empty, prevents delivering to that user.
func (r *Router) Broadcast(roomID string, payload []byte, excludeUserKey string) int {
	r.mu.RLock()
	room := r.rooms[roomID]
	if len(room) == 0 {
		r.mu.RUnlock()
		return 0
	}

	delivered := 0
	for _, conn := range room {
		if excludeUserKey != "" && conn.UserKey == excludeUserKey {
			continue
		}
		if err := conn.Send(payload); err == nil {
			delivered++
		}
	}
	r.mu.RUnlock()
	return delivered
}

// NotifyUser delivers payload to the current connection of the given user.
func (r *Router) NotifyUser(userKey string, payload []byte) bool {
	r.mu.RLock()
	sessionID, ok := r.userSessions[userKey]
	if !ok {
		r.mu.RUnlock()
		return false
	}
	conn := r.sessions[sessionID]
	r.mu.RUnlock()
	if conn == nil {
		return false
	}
	return conn.Send(payload) == nil
}

// KickUser closes and detaches the user's live connection, if any. Used
// when a durable leave invalidates whatever the socket was authenticated
// against.
func (r *Router) KickUser(userKey string, code int, reason string) {
	r.mu.Lock()
	var conn *Connection
	if sessionID, ok := r.userSessions[userKey]; ok {
		conn = r.sessions[sessionID]
		r.detachLocked(sessionID)
	}
	r.mu.Unlock()

	if conn != nil {
		conn.Close(code, reason)
	}
}

// UserRoom reports which room the user's live connection currently
// occupies, or "" when the user has no connection or no room.
func (r *Router) UserRoom(userKey string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessionID, ok := r.userSessions[userKey]
	if !ok {
		return ""
	}
	return r.sessionRoom[sessionID]
}

// RoomUserKeys returns the user keys currently connected in the room.
func (r *Router) RoomUserKeys(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[roomID]
	keys := make([]string, 0, len(room))
	for _, conn := range room {
		keys = append(keys, conn.UserKey)
	}
	return keys
}

// Snapshot reports connection and per-room counts.
func (r *Router) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := Snapshot{
		Connections: len(r.sessions),
		Rooms:       make(map[string]int, len(r.rooms)),
	}
	for roomID, room := range r.rooms {
		snap.Rooms[roomID] = len(room)
	}
	return snap
}

// Reap force-closes connections whose last inbound activity is older than
// idleLimit and returns how many were closed. Bookkeeping cleanup happens
// when each reader loop observes the closed socket, exactly as it does for
// a peer-initiated disconnect.
func (r *Router) Reap(idleLimit time.Duration) int {
	cutoff := time.Now().Add(-idleLimit)

	r.mu.RLock()
	var stale []*Connection
	for _, conn := range r.sessions {
		if conn.IdleSince().Before(cutoff) {
			stale = append(stale, conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range stale {
		conn.Close(CloseLivenessTimeout, "liveness timeout")
	}
	return len(stale)
}

// Janitor runs the local liveness cleanup on a fixed interval until ctx is
// canceled. This reclaims zombie sockets only; durable eviction belongs to
// the sweep.
func (r *Router) Janitor(ctx context.Context, interval, idleLimit time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Reap(idleLimit); n > 0 {
				slog.Info("reaped idle connections", "count", n)
			}
		}
	}
}

// Close terminates all tracked connections and clears router state.
func (r *Router) Close() {
	r.mu.Lock()
	sessions := make([]*Connection, 0, len(r.sessions))
	for _, conn := range r.sessions {
		sessions = append(sessions, conn)
	}
	r.sessions = make(map[string]*Connection)
	r.userSessions = make(map[string]string)
	r.rooms = make(map[string]map[string]*Connection)
	r.sessionRoom = make(map[string]string)
	r.mu.Unlock()

	for _, conn := range sessions {
		conn.Close(1001, "router shutdown")
	}
}

func (r *Router) detachLocked(sessionID string) {
	conn, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(r.sessions, sessionID)

	if current, ok := r.userSessions[conn.UserKey]; ok && current == sessionID {
		delete(r.userSessions, conn.UserKey)
	}

	if roomID, ok := r.sessionRoom[sessionID]; ok {
		r.leaveLocked(roomID, sessionID)
	}
}

func (r *Router) leaveLocked(roomID string, sessionID string) {
	if sessionID == "" {
		return
	}
	room := r.rooms[roomID]
	if room != nil {
		delete(room, sessionID)
		if len(room) == 0 {
			delete(r.rooms, roomID)
		}
	}
	delete(r.sessionRoom, sessionID)
}
