package repository

import (
	"context"
	"time"

	presence "go-lounge/internal/pkg/presence/application/domain"
)

// MembershipRepository is the durable membership store: the single source of
// truth consulted by both the batch sweep and the realtime layer. Every
// structural transition (AFK set, eviction, host transfer, room delete) is
// applied as one atomic unit per room so no observer sees a host-less
// non-empty room mid-transition.
type MembershipRepository interface {
	CreateRoom(ctx context.Context, r presence.Room) (string, error)
	GetRoom(ctx context.Context, roomID string) (*presence.Room, error)
	ListRoomIDs(ctx context.Context) ([]string, error)

	// CreateMembership inserts the membership with last_activity = now and
	// is_afk = false. The first member of a room becomes its host. A
	// re-join of an existing member refreshes display fields and activity
	// instead of failing.
	CreateMembership(ctx context.Context, m presence.Membership) error

	GetMembership(ctx context.Context, roomID, userKey string) (*presence.Membership, error)
	ListRoomMemberships(ctx context.Context, roomID string) ([]presence.Membership, error)

	// TouchActivity advances last_activity (monotonic: a stale timestamp
	// never regresses it) and optionally clears the AFK flag. Returns
	// presence.ErrNotMember when no row matches.
	TouchActivity(ctx context.Context, roomID, userKey string, at time.Time, clearAFK bool) error

	// SetManualAFK sets or clears the user-requested AFK flag.
	SetManualAFK(ctx context.Context, roomID, userKey string, afk bool, at time.Time) error

	// RemoveMembership deletes the row for an explicit leave, transferring
	// host status or deleting the emptied room in the same transaction.
	// Removing an absent row is a no-op, not an error.
	RemoveMembership(ctx context.Context, roomID, userKey string) (presence.LeaveResult, error)

	// ApplyRoomSweep applies a sweep plan atomically. Each step carries its
	// own guard condition, so a concurrent run applying the same plan is a
	// no-op on already-updated rows.
	ApplyRoomSweep(ctx context.Context, plan presence.RoomSweepPlan) (presence.SweepRoomResult, error)
}
