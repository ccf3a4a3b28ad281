package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	presence "go-lounge/internal/pkg/presence/application/domain"
	repository "go-lounge/internal/pkg/presence/persistence/repository/port"
)

// SendMessageInput carries the data needed to persist a new room message.
type SendMessageInput struct {
	RoomID    string
	SenderKey string
	Text      string
	ReplyTo   *string
}

// SendMessageUseCase validates and persists a message. The sender's display
// fields are captured from the current membership snapshot at send time,
// keeping history stable if cosmetic settings change later.
type SendMessageUseCase struct {
	Members  repository.MembershipRepository
	Messages repository.MessageRepository
}

func NewSendMessageUseCase(members repository.MembershipRepository, messages repository.MessageRepository) *SendMessageUseCase {
	return &SendMessageUseCase{Members: members, Messages: messages}
}

func (uc *SendMessageUseCase) Execute(ctx context.Context, in SendMessageInput) (*presence.Message, error) {
	if in.RoomID == "" || in.SenderKey == "" {
		return nil, fmt.Errorf("room_id and sender_key are required")
	}

	m, err := uc.Members.GetMembership(ctx, in.RoomID, in.SenderKey)
	if err != nil {
		if errors.Is(err, presence.ErrNotMember) {
			return nil, presence.ErrNotMember
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	msg, err := presence.NewMessage(*m, in.Text, in.ReplyTo, time.Time{})
	if err != nil {
		return nil, err
	}

	id, err := uc.Messages.SaveMessage(ctx, *msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	msg.ID = id
	return msg, nil
}
