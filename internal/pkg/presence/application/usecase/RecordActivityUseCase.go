package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cacheport "go-lounge/internal/infrastructure/cache/port"
	presence "go-lounge/internal/pkg/presence/application/domain"
	repository "go-lounge/internal/pkg/presence/persistence/repository/port"
)

// Cache keys for the account-level session view. The lounge-wide "who is
// online" set is advisory: never authoritative for room eviction.
const (
	onlineSetKey    = "lounge:online"
	seenKeyPrefix   = "lounge:seen:"
	touchGatePrefix = "lounge:touch:"
)

// defaultCoalesceWindow bounds write volume under high-frequency callers.
const defaultCoalesceWindow = 10 * time.Second

// RecordActivityInput stamps one activity-producing event. RoomID is
// optional; without it only the account-level timestamp is refreshed.
type RecordActivityInput struct {
	UserKey string
	RoomID  string
	Kind    string // "message", "heartbeat", "typing", ...
}

// RecordActivityUseCase is the single write path for activity, exposed
// identically to the socket layer and stateless HTTP handlers. It mutates
// stores only; reflecting an un-AFK transition to room peers is the
// caller's job via the presence server.
type RecordActivityUseCase struct {
	Repo           repository.MembershipRepository
	Cache          cacheport.Cache
	Timeouts       presence.Timeouts
	CoalesceWindow time.Duration
	Now            func() time.Time
}

func NewRecordActivityUseCase(repo repository.MembershipRepository, cache cacheport.Cache, t presence.Timeouts) *RecordActivityUseCase {
	return &RecordActivityUseCase{
		Repo:           repo,
		Cache:          cache,
		Timeouts:       t,
		CoalesceWindow: defaultCoalesceWindow,
		Now:            time.Now,
	}
}

// Execute touches the membership (when a room is given) and always refreshes
// the account-level last-seen. Redundant writes inside the coalescing window
// are skipped, but never the first touch of an AFK membership: that is the
// write that clears AFK promptly.
func (uc *RecordActivityUseCase) Execute(ctx context.Context, in RecordActivityInput) error {
	if in.UserKey == "" {
		return fmt.Errorf("user_key is required")
	}
	now := uc.Now().UTC()

	uc.touchGlobal(ctx, in.UserKey, now)

	if in.RoomID == "" {
		return nil
	}

	m, err := uc.Repo.GetMembership(ctx, in.RoomID, in.UserKey)
	if err != nil {
		if err == presence.ErrNotMember {
			return presence.ErrNotMember
		}
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	// Manual AFK is a user decision; passive activity never clears it.
	clearAFK := !m.ManualAFK

	if !m.IsAFK && !uc.acquireGate(ctx, in.RoomID, in.UserKey) {
		return nil
	}

	if err := uc.Repo.TouchActivity(ctx, in.RoomID, in.UserKey, now, clearAFK); err != nil {
		if err == presence.ErrNotMember {
			return presence.ErrNotMember
		}
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// touchGlobal refreshes the lounge-wide session view. Failures here are
// logged, not surfaced: the durable membership touch is the contract.
func (uc *RecordActivityUseCase) touchGlobal(ctx context.Context, userKey string, now time.Time) {
	if uc.Cache == nil {
		return
	}
	if err := uc.Cache.Set(ctx, seenKeyPrefix+userKey, now.Format(time.RFC3339), uc.Timeouts.GlobalSession); err != nil {
		slog.Warn("global last-seen refresh failed", "user", userKey, "error", err)
		return
	}
	if err := uc.Cache.SAdd(ctx, onlineSetKey, userKey); err != nil {
		slog.Warn("online set update failed", "user", userKey, "error", err)
	}
}

// acquireGate is the coalescing throttle. It fails open: if the cache is
// unreachable the write proceeds, trading write volume for correctness.
func (uc *RecordActivityUseCase) acquireGate(ctx context.Context, roomID, userKey string) bool {
	if uc.Cache == nil {
		return true
	}
	window := uc.CoalesceWindow
	if window <= 0 {
		return true
	}
	ok, err := uc.Cache.SetNX(ctx, touchGatePrefix+roomID+":"+userKey, "1", window)
	if err != nil {
		return true
	}
	return ok
}
