package presence

import (
	"errors"
	"time"
)

// Domain-level errors for presence behaviors
var (
	ErrRoomNotFound    = errors.New("presence: room does not exist")
	ErrNotMember       = errors.New("presence: user has no membership in this room")
	ErrEmptyMessage    = errors.New("presence: empty message")
	ErrNoHostCandidate = errors.New("presence: room has members but no host-eligible candidate")
)

// Membership is the record of one user currently present in one room.
// Primary key: (RoomID, UserKey). UserKey is stable across reconnects; it is
// never a socket id. Display fields travel with the membership so messages
// can capture a sender snapshot at send time.
type Membership struct {
	RoomID       string     `db:"room_id"`
	UserKey      string     `db:"user_key"`
	DisplayName  string     `db:"display_name"`
	Avatar       string     `db:"avatar"`
	Color        string     `db:"color"`
	LastActivity time.Time  `db:"last_activity"`
	IsAFK        bool       `db:"is_afk"`
	AFKSince     *time.Time `db:"afk_since"`
	ManualAFK    bool       `db:"manual_afk"`
	IsHost       bool       `db:"is_host"`
	JoinedAt     time.Time  `db:"joined_at"`
}

// AFKConsistent reports the invariant that is_afk is set iff afk_since is.
func (m Membership) AFKConsistent() bool {
	return m.IsAFK == (m.AFKSince != nil)
}

// Room is a chat room. ExtendedSession extends the disconnect deadline for
// every member of the room, not just the host.
type Room struct {
	ID              string    `db:"id"`
	Name            string    `db:"name"`
	ExtendedSession bool      `db:"extended_session"`
	CreatedAt       time.Time `db:"created_at"`
}
