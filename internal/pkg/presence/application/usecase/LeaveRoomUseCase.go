package usecase

import (
	"context"
	"fmt"

	presence "go-lounge/internal/pkg/presence/application/domain"
	repository "go-lounge/internal/pkg/presence/persistence/repository/port"
)

// LeaveRoomInput identifies the membership to remove.
type LeaveRoomInput struct {
	RoomID  string
	UserKey string
}

// LeaveRoomUseCase is the explicit-leave path and the single owner of
// durable row deletion on the realtime side; the sweep is the only other
// writer that removes rows, and both are idempotent, so the race between
// them resolves to exactly one removal.
type LeaveRoomUseCase struct {
	Repo repository.MembershipRepository
}

func NewLeaveRoomUseCase(repo repository.MembershipRepository) *LeaveRoomUseCase {
	return &LeaveRoomUseCase{Repo: repo}
}

func (uc *LeaveRoomUseCase) Execute(ctx context.Context, in LeaveRoomInput) (presence.LeaveResult, error) {
	if in.RoomID == "" || in.UserKey == "" {
		return presence.LeaveResult{}, fmt.Errorf("room_id and user_key are required")
	}

	res, err := uc.Repo.RemoveMembership(ctx, in.RoomID, in.UserKey)
	if err != nil {
		return presence.LeaveResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return res, nil
}
