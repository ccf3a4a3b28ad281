package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	presence "go-lounge/internal/pkg/presence/application/domain"
	repository "go-lounge/internal/pkg/presence/persistence/repository/port"
)

// SetManualAFKInput sets or clears the user-requested AFK flag. Once set,
// passive activity does not clear it; only this path does.
type SetManualAFKInput struct {
	RoomID  string
	UserKey string
	AFK     bool
}

type SetManualAFKUseCase struct {
	Repo repository.MembershipRepository
	Now  func() time.Time
}

func NewSetManualAFKUseCase(repo repository.MembershipRepository) *SetManualAFKUseCase {
	return &SetManualAFKUseCase{Repo: repo, Now: time.Now}
}

func (uc *SetManualAFKUseCase) Execute(ctx context.Context, in SetManualAFKInput) error {
	if in.RoomID == "" || in.UserKey == "" {
		return fmt.Errorf("room_id and user_key are required")
	}

	err := uc.Repo.SetManualAFK(ctx, in.RoomID, in.UserKey, in.AFK, uc.Now().UTC())
	if err != nil {
		if errors.Is(err, presence.ErrNotMember) {
			return presence.ErrNotMember
		}
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}
