package usecase

import (
	"context"
	"fmt"

	presence "go-lounge/internal/pkg/presence/application/domain"
	repository "go-lounge/internal/pkg/presence/persistence/repository/port"
)

// GetMessageInput carries parameters to fetch messages of a room.
type GetMessageInput struct {
	RoomID string
	Limit  int
	Offset int
}

// GetMessageUseCase fetches recent messages for a given room.
type GetMessageUseCase struct {
	Repo repository.MessageRepository
}

func NewGetMessageUseCase(repo repository.MessageRepository) *GetMessageUseCase {
	return &GetMessageUseCase{Repo: repo}
}

// Execute returns messages for the room honoring limit/offset.
func (uc *GetMessageUseCase) Execute(ctx context.Context, in GetMessageInput) ([]presence.Message, error) {
	if in.RoomID == "" {
		return nil, fmt.Errorf("room_id is required")
	}
	msgs, err := uc.Repo.ListRoomMessages(ctx, in.RoomID, in.Limit, in.Offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return msgs, nil
}
