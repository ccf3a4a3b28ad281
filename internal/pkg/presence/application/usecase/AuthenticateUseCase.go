package usecase

import (
	"context"
	"errors"
	"fmt"

	presence "go-lounge/internal/pkg/presence/application/domain"
	repository "go-lounge/internal/pkg/presence/persistence/repository/port"
)

// AuthenticateInput identifies the membership a realtime client claims.
type AuthenticateInput struct {
	UserKey string
	RoomID  string
}

// AuthenticateResult carries the verified membership plus the current room
// roster, so the socket layer can send the joining client a snapshot in the
// same breath.
type AuthenticateResult struct {
	Membership presence.Membership
	Roster     []presence.Membership
}

// AuthenticateUseCase verifies a membership row exists for (userKey,
// roomID). It never creates memberships; that belongs to the join flow.
type AuthenticateUseCase struct {
	Repo repository.MembershipRepository
}

func NewAuthenticateUseCase(repo repository.MembershipRepository) *AuthenticateUseCase {
	return &AuthenticateUseCase{Repo: repo}
}

func (uc *AuthenticateUseCase) Execute(ctx context.Context, in AuthenticateInput) (*AuthenticateResult, error) {
	if in.UserKey == "" || in.RoomID == "" {
		return nil, fmt.Errorf("user_key and room_id are required")
	}

	m, err := uc.Repo.GetMembership(ctx, in.RoomID, in.UserKey)
	if err != nil {
		if errors.Is(err, presence.ErrNotMember) {
			return nil, presence.ErrNotMember
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	roster, err := uc.Repo.ListRoomMemberships(ctx, in.RoomID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	return &AuthenticateResult{Membership: *m, Roster: roster}, nil
}
