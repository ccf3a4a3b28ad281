package usecase

import (
	"context"
	"testing"
	"time"

	presence "go-lounge/internal/pkg/presence/application/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sweepNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newSweepFixture(t *testing.T) (*fakeMembershipRepo, *RunSweepUseCase) {
	t.Helper()
	repo := newFakeMembershipRepo()
	uc := NewRunSweepUseCase(repo, presence.DefaultTimeouts())
	uc.Now = func() time.Time { return sweepNow }
	return repo, uc
}

func seedRoom(t *testing.T, repo *fakeMembershipRepo, extended bool) string {
	t.Helper()
	id, err := repo.CreateRoom(context.Background(), presence.Room{Name: "lounge", ExtendedSession: extended})
	require.NoError(t, err)
	return id
}

func seedMember(t *testing.T, repo *fakeMembershipRepo, roomID, userKey string, idle time.Duration, joinedAt time.Time) {
	t.Helper()
	err := repo.CreateMembership(context.Background(), presence.Membership{
		RoomID:       roomID,
		UserKey:      userKey,
		DisplayName:  userKey,
		LastActivity: sweepNow.Add(-idle),
		JoinedAt:     joinedAt,
	})
	require.NoError(t, err)
}

func TestRunSweep(t *testing.T) {
	ctx := context.Background()

	t.Run("idle member turns AFK, fresh member untouched", func(t *testing.T) {
		repo, uc := newSweepFixture(t)
		roomID := seedRoom(t, repo, false)
		seedMember(t, repo, roomID, "idler", 20*time.Minute, sweepNow.Add(-time.Hour))
		seedMember(t, repo, roomID, "talker", 1*time.Minute, sweepNow.Add(-time.Hour))

		summary, err := uc.Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.UsersAFK)
		assert.Zero(t, summary.UsersDisconnected)

		idler, err := repo.GetMembership(ctx, roomID, "idler")
		require.NoError(t, err)
		assert.True(t, idler.IsAFK)
		require.NotNil(t, idler.AFKSince)
		assert.True(t, idler.AFKConsistent())

		talker, err := repo.GetMembership(ctx, roomID, "talker")
		require.NoError(t, err)
		assert.False(t, talker.IsAFK)
	})

	t.Run("second run is a no-op", func(t *testing.T) {
		repo, uc := newSweepFixture(t)
		roomID := seedRoom(t, repo, false)
		seedMember(t, repo, roomID, "idler", 20*time.Minute, sweepNow.Add(-time.Hour))

		first, err := uc.Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, first.UsersAFK)

		firstState, err := repo.GetMembership(ctx, roomID, "idler")
		require.NoError(t, err)

		second, err := uc.Execute(ctx)
		require.NoError(t, err)
		assert.Zero(t, second.UsersAFK)
		assert.Zero(t, second.UsersDisconnected)

		// afk_since survives the redundant run.
		secondState, err := repo.GetMembership(ctx, roomID, "idler")
		require.NoError(t, err)
		assert.Equal(t, firstState.AFKSince, secondState.AFKSince)
	})

	t.Run("host idle 85 minutes stays on the extended deadline", func(t *testing.T) {
		repo, uc := newSweepFixture(t)
		roomID := seedRoom(t, repo, false)
		seedMember(t, repo, roomID, "host", 85*time.Minute, sweepNow.Add(-2*time.Hour))
		seedMember(t, repo, roomID, "guest", 1*time.Minute, sweepNow.Add(-time.Hour))

		summary, err := uc.Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.UsersAFK)
		assert.Zero(t, summary.UsersDisconnected)
		assert.Zero(t, summary.HostsTransferred)

		host, err := repo.GetMembership(ctx, roomID, "host")
		require.NoError(t, err)
		assert.True(t, host.IsHost)
		assert.True(t, host.IsAFK)
	})

	t.Run("regular member idle 85 minutes is evicted", func(t *testing.T) {
		repo, uc := newSweepFixture(t)
		roomID := seedRoom(t, repo, false)
		seedMember(t, repo, roomID, "host", 1*time.Minute, sweepNow.Add(-2*time.Hour))
		seedMember(t, repo, roomID, "gone", 85*time.Minute, sweepNow.Add(-time.Hour))

		summary, err := uc.Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.UsersDisconnected)

		_, err = repo.GetMembership(ctx, roomID, "gone")
		assert.ErrorIs(t, err, presence.ErrNotMember)
	})

	t.Run("solo host eviction deletes the room", func(t *testing.T) {
		repo, uc := newSweepFixture(t)
		roomID := seedRoom(t, repo, false)
		seedMember(t, repo, roomID, "host", 3*time.Hour, sweepNow.Add(-4*time.Hour))

		summary, err := uc.Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.UsersDisconnected)
		assert.Equal(t, 1, summary.RoomsDeleted)
		assert.Zero(t, summary.HostsTransferred)

		_, err = repo.GetRoom(ctx, roomID)
		assert.ErrorIs(t, err, presence.ErrRoomNotFound)
	})

	t.Run("host eviction transfers to the earliest joined member", func(t *testing.T) {
		repo, uc := newSweepFixture(t)
		roomID := seedRoom(t, repo, false)
		seedMember(t, repo, roomID, "host", 3*time.Hour, sweepNow.Add(-4*time.Hour))
		seedMember(t, repo, roomID, "second", 1*time.Minute, sweepNow.Add(-3*time.Hour))
		seedMember(t, repo, roomID, "third", 1*time.Minute, sweepNow.Add(-2*time.Hour))

		summary, err := uc.Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.UsersDisconnected)
		assert.Equal(t, 1, summary.HostsTransferred)
		assert.Zero(t, summary.RoomsDeleted)

		second, err := repo.GetMembership(ctx, roomID, "second")
		require.NoError(t, err)
		assert.True(t, second.IsHost)

		third, err := repo.GetMembership(ctx, roomID, "third")
		require.NoError(t, err)
		assert.False(t, third.IsHost)
	})

	t.Run("host transfer tie-break is by user key", func(t *testing.T) {
		repo, uc := newSweepFixture(t)
		roomID := seedRoom(t, repo, false)
		joined := sweepNow.Add(-3 * time.Hour)
		seedMember(t, repo, roomID, "host", 3*time.Hour, sweepNow.Add(-4*time.Hour))
		seedMember(t, repo, roomID, "bbb", 1*time.Minute, joined)
		seedMember(t, repo, roomID, "aaa", 1*time.Minute, joined)

		_, err := uc.Execute(ctx)
		require.NoError(t, err)

		aaa, err := repo.GetMembership(ctx, roomID, "aaa")
		require.NoError(t, err)
		assert.True(t, aaa.IsHost)
	})

	t.Run("extended-session room keeps a regular member at 85 minutes", func(t *testing.T) {
		repo, uc := newSweepFixture(t)
		roomID := seedRoom(t, repo, true)
		seedMember(t, repo, roomID, "host", 1*time.Minute, sweepNow.Add(-2*time.Hour))
		seedMember(t, repo, roomID, "guest", 85*time.Minute, sweepNow.Add(-time.Hour))

		summary, err := uc.Execute(ctx)
		require.NoError(t, err)
		assert.Zero(t, summary.UsersDisconnected)
		assert.Equal(t, 1, summary.UsersAFK)
	})

	t.Run("manual AFK member is still evicted on schedule", func(t *testing.T) {
		repo, uc := newSweepFixture(t)
		roomID := seedRoom(t, repo, false)
		seedMember(t, repo, roomID, "host", 1*time.Minute, sweepNow.Add(-2*time.Hour))
		seedMember(t, repo, roomID, "away", 70*time.Minute, sweepNow.Add(-time.Hour))
		require.NoError(t, repo.SetManualAFK(ctx, roomID, "away", true, sweepNow.Add(-70*time.Minute)))

		summary, err := uc.Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.UsersDisconnected)
	})

	t.Run("freshly created empty room survives the sweep", func(t *testing.T) {
		repo, uc := newSweepFixture(t)
		roomID, err := repo.CreateRoom(ctx, presence.Room{Name: "brand-new", CreatedAt: sweepNow.Add(-time.Minute)})
		require.NoError(t, err)

		summary, err := uc.Execute(ctx)
		require.NoError(t, err)
		assert.Zero(t, summary.RoomsDeleted)

		_, err = repo.GetRoom(ctx, roomID)
		assert.NoError(t, err, "room created moments ago must keep waiting for its first join")
	})

	t.Run("long-empty room is cleaned up", func(t *testing.T) {
		repo, uc := newSweepFixture(t)
		roomID, err := repo.CreateRoom(ctx, presence.Room{Name: "abandoned", CreatedAt: sweepNow.Add(-2 * time.Hour)})
		require.NoError(t, err)

		summary, err := uc.Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.RoomsDeleted)

		_, err = repo.GetRoom(ctx, roomID)
		assert.ErrorIs(t, err, presence.ErrRoomNotFound)
	})

	t.Run("empty store sweeps clean", func(t *testing.T) {
		_, uc := newSweepFixture(t)
		summary, err := uc.Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, presence.SweepSummary{}, summary)
	})
}
