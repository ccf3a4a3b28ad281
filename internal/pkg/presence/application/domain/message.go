package presence

import (
	"strings"
	"time"
)

// Message is an immutable log entry in a room. Sender display fields are a
// snapshot taken at send time, so history stays stable even if the sender
// later changes cosmetic settings.
type Message struct {
	ID          string    `db:"id"`
	RoomID      string    `db:"room_id"`
	SenderKey   string    `db:"sender_key"`
	DisplayName string    `db:"display_name"`
	Avatar      string    `db:"avatar"`
	Color       string    `db:"color"`
	Text        string    `db:"body"`
	ReplyTo     *string   `db:"reply_to"`
	CreatedAt   time.Time `db:"created_at"`
}

// NewMessage validates text and stamps the sender snapshot from the
// membership. Whitespace-only text is rejected before any state mutation.
func NewMessage(m Membership, text string, replyTo *string, now time.Time) (*Message, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyMessage
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return &Message{
		RoomID:      m.RoomID,
		SenderKey:   m.UserKey,
		DisplayName: m.DisplayName,
		Avatar:      m.Avatar,
		Color:       m.Color,
		Text:        trimmed,
		ReplyTo:     replyTo,
		CreatedAt:   now.UTC(),
	}, nil
}
