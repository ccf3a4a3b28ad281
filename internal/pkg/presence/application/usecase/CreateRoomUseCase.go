package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	presence "go-lounge/internal/pkg/presence/application/domain"
	repository "go-lounge/internal/pkg/presence/persistence/repository/port"
)

// CreateRoomInput carries room creation parameters. ExtendedSession widens
// the disconnect deadline for every member of the room.
type CreateRoomInput struct {
	Name            string
	ExtendedSession bool
}

// CreateRoomUseCase creates an empty room. The first member to join becomes
// its host.
type CreateRoomUseCase struct {
	Repo repository.MembershipRepository
	Now  func() time.Time
}

func NewCreateRoomUseCase(repo repository.MembershipRepository) *CreateRoomUseCase {
	return &CreateRoomUseCase{Repo: repo, Now: time.Now}
}

func (uc *CreateRoomUseCase) Execute(ctx context.Context, in CreateRoomInput) (*presence.Room, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}

	room := presence.Room{
		Name:            name,
		ExtendedSession: in.ExtendedSession,
		CreatedAt:       uc.Now().UTC(),
	}
	id, err := uc.Repo.CreateRoom(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	room.ID = id
	return &room, nil
}
