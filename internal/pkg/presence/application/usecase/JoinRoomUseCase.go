package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	presence "go-lounge/internal/pkg/presence/application/domain"
	repository "go-lounge/internal/pkg/presence/persistence/repository/port"
)

// JoinRoomInput carries the join flow's membership creation request.
type JoinRoomInput struct {
	RoomID      string
	UserKey     string
	DisplayName string
	Avatar      string
	Color       string
}

// JoinRoomUseCase creates the durable membership row: the join flow is the
// only writer that brings memberships into existence; the presence server
// merely verifies them.
type JoinRoomUseCase struct {
	Repo repository.MembershipRepository
	Now  func() time.Time
}

func NewJoinRoomUseCase(repo repository.MembershipRepository) *JoinRoomUseCase {
	return &JoinRoomUseCase{Repo: repo, Now: time.Now}
}

func (uc *JoinRoomUseCase) Execute(ctx context.Context, in JoinRoomInput) (*presence.Membership, error) {
	if in.RoomID == "" || in.UserKey == "" {
		return nil, fmt.Errorf("room_id and user_key are required")
	}

	now := uc.Now().UTC()
	m := presence.Membership{
		RoomID:       in.RoomID,
		UserKey:      in.UserKey,
		DisplayName:  in.DisplayName,
		Avatar:       in.Avatar,
		Color:        in.Color,
		LastActivity: now,
		JoinedAt:     now,
	}
	if err := uc.Repo.CreateMembership(ctx, m); err != nil {
		if errors.Is(err, presence.ErrRoomNotFound) {
			return nil, presence.ErrRoomNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	created, err := uc.Repo.GetMembership(ctx, in.RoomID, in.UserKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return created, nil
}
