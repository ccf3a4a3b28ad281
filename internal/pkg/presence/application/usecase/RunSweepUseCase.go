package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	presence "go-lounge/internal/pkg/presence/application/domain"
	repository "go-lounge/internal/pkg/presence/persistence/repository/port"
)

// RunSweepUseCase is the durable backstop: a stateless, idempotent batch
// pass that applies the timeout policy to every membership. It is safe to
// invoke concurrently or redundantly; the per-room plans carry cutoff
// guards, so a second run observing already-updated rows changes nothing.
type RunSweepUseCase struct {
	Repo     repository.MembershipRepository
	Timeouts presence.Timeouts
	Now      func() time.Time
}

func NewRunSweepUseCase(repo repository.MembershipRepository, t presence.Timeouts) *RunSweepUseCase {
	return &RunSweepUseCase{Repo: repo, Timeouts: t, Now: time.Now}
}

// Execute sweeps all rooms and returns the aggregate summary. A room that
// fails mid-transition is rolled back, logged, and retried implicitly by
// the next run; the state is re-derivable from timestamps alone, so there
// is no recovery log. The returned error joins per-room failures without
// invalidating the summary of the rooms that succeeded.
func (uc *RunSweepUseCase) Execute(ctx context.Context) (presence.SweepSummary, error) {
	var summary presence.SweepSummary

	roomIDs, err := uc.Repo.ListRoomIDs(ctx)
	if err != nil {
		return summary, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	var sweepErrs []error
	for _, roomID := range roomIDs {
		result, err := uc.sweepRoom(ctx, roomID)
		if err != nil {
			if errors.Is(err, presence.ErrNoHostCandidate) {
				// Invariant violation: surface loudly, never leave the room host-less.
				slog.Error("host transfer found no candidate", "room", roomID)
			} else {
				slog.Warn("room sweep failed, next run will retry", "room", roomID, "error", err)
			}
			sweepErrs = append(sweepErrs, fmt.Errorf("room %s: %w", roomID, err))
			continue
		}
		summary.Add(result)
	}

	slog.Info("sweep finished",
		"afk", summary.UsersAFK,
		"disconnected", summary.UsersDisconnected,
		"hosts_transferred", summary.HostsTransferred,
		"rooms_deleted", summary.RoomsDeleted,
	)
	return summary, errors.Join(sweepErrs...)
}

func (uc *RunSweepUseCase) sweepRoom(ctx context.Context, roomID string) (presence.SweepRoomResult, error) {
	room, err := uc.Repo.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, presence.ErrRoomNotFound) {
			// Deleted since listing; nothing to do.
			return presence.SweepRoomResult{}, nil
		}
		return presence.SweepRoomResult{}, err
	}

	members, err := uc.Repo.ListRoomMemberships(ctx, roomID)
	if err != nil {
		return presence.SweepRoomResult{}, err
	}

	now := uc.Now().UTC()
	plan := presence.RoomSweepPlan{
		RoomID:    roomID,
		AFKCutoff: now.Add(-uc.Timeouts.AFK),
		AFKSince:  now,
	}

	for _, m := range members {
		state, _ := presence.Classify(m.LastActivity, now, m.IsHost, room.ExtendedSession, uc.Timeouts)
		switch state {
		case presence.StateActive:
			if m.IsAFK && !m.ManualAFK {
				// AFK flag with fresh activity: flip the row back.
				slog.Warn("clearing stale AFK flag", "room", roomID, "user", m.UserKey)
				plan.ClearAFK = append(plan.ClearAFK, m.UserKey)
			}
		case presence.StateAFK:
			if !m.IsAFK {
				plan.MarkAFK = append(plan.MarkAFK, m.UserKey)
			}
		case presence.StateDisconnected:
			plan.Evict = append(plan.Evict, presence.EvictTarget{
				UserKey: m.UserKey,
				Cutoff:  now.Add(-uc.Timeouts.DisconnectFor(m.IsHost, room.ExtendedSession)),
			})
		}
	}

	// An empty plan still goes through when the room has no members, so
	// orphaned rooms are cleaned up. Freshly created rooms get a grace
	// window to receive their first join before counting as orphaned.
	if len(members) == 0 && now.Sub(room.CreatedAt) < uc.Timeouts.AFK {
		return presence.SweepRoomResult{}, nil
	}
	if plan.Empty() && len(members) > 0 {
		return presence.SweepRoomResult{}, nil
	}

	return uc.Repo.ApplyRoomSweep(ctx, plan)
}
