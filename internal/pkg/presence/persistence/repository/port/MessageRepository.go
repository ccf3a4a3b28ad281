package repository

import (
	"context"

	presence "go-lounge/internal/pkg/presence/application/domain"
)

// MessageRepository persists room messages. Messages cascade away with
// their room; the presence core never deletes them individually.
type MessageRepository interface {
	SaveMessage(ctx context.Context, m presence.Message) (string, error)
	ListRoomMessages(ctx context.Context, roomID string, limit, offset int) ([]presence.Message, error)
}
