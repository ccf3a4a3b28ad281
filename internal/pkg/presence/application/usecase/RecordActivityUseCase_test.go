package usecase

import (
	"context"
	"testing"
	"time"

	presence "go-lounge/internal/pkg/presence/application/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecorderFixture(t *testing.T) (*fakeMembershipRepo, *fakeCache, *RecordActivityUseCase) {
	t.Helper()
	repo := newFakeMembershipRepo()
	cache := newFakeCache()
	uc := NewRecordActivityUseCase(repo, cache, presence.DefaultTimeouts())
	return repo, cache, uc
}

func TestRecordActivity(t *testing.T) {
	ctx := context.Background()

	t.Run("touch advances last_activity", func(t *testing.T) {
		repo, _, uc := newRecorderFixture(t)
		roomID := seedRoom(t, repo, false)
		seedMember(t, repo, roomID, "ada", 10*time.Minute, sweepNow.Add(-time.Hour))
		before, _ := repo.GetMembership(ctx, roomID, "ada")

		err := uc.Execute(ctx, RecordActivityInput{UserKey: "ada", RoomID: roomID, Kind: "heartbeat"})
		require.NoError(t, err)

		after, err := repo.GetMembership(ctx, roomID, "ada")
		require.NoError(t, err)
		assert.True(t, after.LastActivity.After(before.LastActivity))
	})

	t.Run("redundant touches inside the window coalesce", func(t *testing.T) {
		repo, _, uc := newRecorderFixture(t)
		roomID := seedRoom(t, repo, false)
		seedMember(t, repo, roomID, "ada", 0, sweepNow.Add(-time.Hour))

		in := RecordActivityInput{UserKey: "ada", RoomID: roomID, Kind: "typing"}
		require.NoError(t, uc.Execute(ctx, in))
		require.NoError(t, uc.Execute(ctx, in))
		require.NoError(t, uc.Execute(ctx, in))

		assert.Equal(t, 1, repo.touchCalls)
	})

	t.Run("AFK member bypasses the gate so the flag clears promptly", func(t *testing.T) {
		repo, _, uc := newRecorderFixture(t)
		roomID := seedRoom(t, repo, false)
		seedMember(t, repo, roomID, "ada", 20*time.Minute, sweepNow.Add(-time.Hour))
		now := time.Now().UTC()
		_, err := repo.ApplyRoomSweep(ctx, applyAFKPlan(roomID, "ada", now))
		require.NoError(t, err)

		// Burn the gate first so only the AFK bypass can explain the write.
		_, _ = uc.Cache.SetNX(ctx, "lounge:touch:"+roomID+":ada", "1", time.Minute)

		require.NoError(t, uc.Execute(ctx, RecordActivityInput{UserKey: "ada", RoomID: roomID, Kind: "message"}))

		m, err := repo.GetMembership(ctx, roomID, "ada")
		require.NoError(t, err)
		assert.False(t, m.IsAFK)
		assert.Nil(t, m.AFKSince)
	})

	t.Run("manual AFK survives passive activity", func(t *testing.T) {
		repo, _, uc := newRecorderFixture(t)
		roomID := seedRoom(t, repo, false)
		seedMember(t, repo, roomID, "ada", 5*time.Minute, sweepNow.Add(-time.Hour))
		require.NoError(t, repo.SetManualAFK(ctx, roomID, "ada", true, time.Now().UTC()))

		require.NoError(t, uc.Execute(ctx, RecordActivityInput{UserKey: "ada", RoomID: roomID, Kind: "heartbeat"}))

		m, err := repo.GetMembership(ctx, roomID, "ada")
		require.NoError(t, err)
		assert.True(t, m.IsAFK)
		assert.True(t, m.ManualAFK)
	})

	t.Run("room-less activity refreshes only the global view", func(t *testing.T) {
		repo, cache, uc := newRecorderFixture(t)

		require.NoError(t, uc.Execute(ctx, RecordActivityInput{UserKey: "ada", Kind: "heartbeat"}))

		assert.Zero(t, repo.touchCalls)
		seen, err := cache.Exists(ctx, "lounge:seen:ada")
		require.NoError(t, err)
		assert.True(t, seen)
		online, err := cache.SMembers(ctx, "lounge:online")
		require.NoError(t, err)
		assert.Equal(t, []string{"ada"}, online)
	})

	t.Run("unknown membership reports ErrNotMember", func(t *testing.T) {
		repo, _, uc := newRecorderFixture(t)
		roomID := seedRoom(t, repo, false)
		err := uc.Execute(ctx, RecordActivityInput{UserKey: "ghost", RoomID: roomID, Kind: "heartbeat"})
		assert.ErrorIs(t, err, presence.ErrNotMember)
	})

	t.Run("gate failure fails open", func(t *testing.T) {
		repo, cache, uc := newRecorderFixture(t)
		roomID := seedRoom(t, repo, false)
		seedMember(t, repo, roomID, "ada", 0, sweepNow.Add(-time.Hour))
		cache.failSetNX = true

		in := RecordActivityInput{UserKey: "ada", RoomID: roomID, Kind: "typing"}
		require.NoError(t, uc.Execute(ctx, in))
		require.NoError(t, uc.Execute(ctx, in))

		assert.Equal(t, 2, repo.touchCalls)
	})
}

func TestListOnline(t *testing.T) {
	ctx := context.Background()

	t.Run("prunes members whose seen key expired", func(t *testing.T) {
		cache := newFakeCache()
		require.NoError(t, cache.SAdd(ctx, "lounge:online", "fresh", "stale"))
		require.NoError(t, cache.Set(ctx, "lounge:seen:fresh", "now", time.Hour))

		uc := NewListOnlineUseCase(cache)
		online, err := uc.Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"fresh"}, online)

		// The stale member is removed from the advisory set as well.
		members, err := cache.SMembers(ctx, "lounge:online")
		require.NoError(t, err)
		assert.Equal(t, []string{"fresh"}, members)
	})
}

// applyAFKPlan marks one member AFK through the store contract, the same
// way the sweep does.
func applyAFKPlan(roomID, userKey string, now time.Time) presence.RoomSweepPlan {
	return presence.RoomSweepPlan{
		RoomID:    roomID,
		MarkAFK:   []string{userKey},
		AFKCutoff: now,
		AFKSince:  now,
	}
}
