package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	presence "go-lounge/internal/pkg/presence/application/domain"
)

// fakeMembershipRepo mirrors the store contract in memory, including the
// sweep guard conditions, so the use case tests exercise the same
// idempotence behavior the SQL adapter provides.
type fakeMembershipRepo struct {
	mu      sync.Mutex
	rooms   map[string]presence.Room
	members map[string]map[string]*presence.Membership // roomID -> userKey -> row
	nextID  int

	touchCalls int
}

func newFakeMembershipRepo() *fakeMembershipRepo {
	return &fakeMembershipRepo{
		rooms:   make(map[string]presence.Room),
		members: make(map[string]map[string]*presence.Membership),
	}
}

func (f *fakeMembershipRepo) CreateRoom(_ context.Context, r presence.Room) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("room-%d", f.nextID)
	r.ID = id
	f.rooms[id] = r
	f.members[id] = make(map[string]*presence.Membership)
	return id, nil
}

func (f *fakeMembershipRepo) GetRoom(_ context.Context, roomID string) (*presence.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[roomID]
	if !ok {
		return nil, presence.ErrRoomNotFound
	}
	return &r, nil
}

func (f *fakeMembershipRepo) ListRoomIDs(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.rooms))
	for id := range f.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeMembershipRepo) CreateMembership(_ context.Context, m presence.Membership) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	roomMembers, ok := f.members[m.RoomID]
	if !ok {
		return presence.ErrRoomNotFound
	}
	if existing, ok := roomMembers[m.UserKey]; ok {
		existing.DisplayName = m.DisplayName
		existing.Avatar = m.Avatar
		existing.Color = m.Color
		existing.LastActivity = m.LastActivity
		existing.IsAFK = false
		existing.AFKSince = nil
		existing.ManualAFK = false
		return nil
	}
	m.IsHost = len(roomMembers) == 0
	roomMembers[m.UserKey] = &m
	return nil
}

func (f *fakeMembershipRepo) GetMembership(_ context.Context, roomID, userKey string) (*presence.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[roomID][userKey]
	if !ok {
		return nil, presence.ErrNotMember
	}
	copied := *m
	return &copied, nil
}

func (f *fakeMembershipRepo) ListRoomMemberships(_ context.Context, roomID string) ([]presence.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roomMembers := f.members[roomID]
	out := make([]presence.Membership, 0, len(roomMembers))
	for _, m := range roomMembers {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserKey < out[j].UserKey
	})
	return out, nil
}

func (f *fakeMembershipRepo) TouchActivity(_ context.Context, roomID, userKey string, at time.Time, clearAFK bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[roomID][userKey]
	if !ok {
		return presence.ErrNotMember
	}
	f.touchCalls++
	if at.After(m.LastActivity) {
		m.LastActivity = at
	}
	if clearAFK {
		m.IsAFK = false
		m.AFKSince = nil
	}
	return nil
}

func (f *fakeMembershipRepo) SetManualAFK(_ context.Context, roomID, userKey string, afk bool, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[roomID][userKey]
	if !ok {
		return presence.ErrNotMember
	}
	m.ManualAFK = afk
	m.IsAFK = afk
	if afk {
		since := at
		m.AFKSince = &since
	} else {
		m.AFKSince = nil
		m.LastActivity = at
	}
	return nil
}

func (f *fakeMembershipRepo) RemoveMembership(_ context.Context, roomID, userKey string) (presence.LeaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roomMembers, ok := f.members[roomID]
	if !ok {
		return presence.LeaveResult{}, nil
	}
	m, ok := roomMembers[userKey]
	if !ok {
		return presence.LeaveResult{}, nil
	}
	wasHost := m.IsHost
	delete(roomMembers, userKey)

	res := presence.LeaveResult{Removed: true}
	if len(roomMembers) == 0 {
		delete(f.rooms, roomID)
		delete(f.members, roomID)
		res.RoomDeleted = true
		return res, nil
	}
	if wasHost {
		res.NewHostKey = f.promoteLocked(roomID)
	}
	return res, nil
}

func (f *fakeMembershipRepo) ApplyRoomSweep(_ context.Context, plan presence.RoomSweepPlan) (presence.SweepRoomResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var res presence.SweepRoomResult
	roomMembers, ok := f.members[plan.RoomID]
	if !ok {
		return res, nil
	}

	for _, key := range plan.MarkAFK {
		m, ok := roomMembers[key]
		if !ok || m.IsAFK || m.LastActivity.After(plan.AFKCutoff) {
			continue
		}
		since := plan.AFKSince
		m.IsAFK = true
		m.AFKSince = &since
		res.MarkedAFK++
	}

	for _, key := range plan.ClearAFK {
		m, ok := roomMembers[key]
		if !ok || !m.IsAFK || m.ManualAFK {
			continue
		}
		m.IsAFK = false
		m.AFKSince = nil
	}

	hostEvicted := false
	for _, target := range plan.Evict {
		m, ok := roomMembers[target.UserKey]
		if !ok || m.LastActivity.After(target.Cutoff) {
			continue
		}
		if m.IsHost {
			hostEvicted = true
		}
		delete(roomMembers, target.UserKey)
		res.Evicted++
	}

	if len(roomMembers) == 0 {
		delete(f.rooms, plan.RoomID)
		delete(f.members, plan.RoomID)
		res.RoomDeleted = true
		return res, nil
	}
	if hostEvicted {
		f.promoteLocked(plan.RoomID)
		res.HostTransferred = true
	}
	return res, nil
}

// promoteLocked elects the earliest-joined member, user key as tie-break.
func (f *fakeMembershipRepo) promoteLocked(roomID string) string {
	var candidate *presence.Membership
	for _, m := range f.members[roomID] {
		if candidate == nil ||
			m.JoinedAt.Before(candidate.JoinedAt) ||
			(m.JoinedAt.Equal(candidate.JoinedAt) && m.UserKey < candidate.UserKey) {
			candidate = m
		}
	}
	if candidate == nil {
		return ""
	}
	candidate.IsHost = true
	return candidate.UserKey
}

// fakeMessageRepo appends into a slice.
type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []presence.Message
}

func (f *fakeMessageRepo) SaveMessage(_ context.Context, m presence.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = fmt.Sprintf("msg-%d", len(f.messages)+1)
	f.messages = append(f.messages, m)
	return m.ID, nil
}

func (f *fakeMessageRepo) ListRoomMessages(_ context.Context, roomID string, limit, offset int) ([]presence.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []presence.Message
	for _, m := range f.messages {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// fakeCache is a minimal in-memory Cache with TTL-aware keys.
type fakeCache struct {
	mu      sync.Mutex
	values  map[string]string
	expires map[string]time.Time
	sets    map[string]map[string]struct{}
	now     func() time.Time

	failSetNX bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		values:  make(map[string]string),
		expires: make(map[string]time.Time),
		sets:    make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

func (f *fakeCache) expiredLocked(key string) bool {
	exp, ok := f.expires[key]
	return ok && f.now().After(exp)
}

func (f *fakeCache) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok || f.expiredLocked(key) {
		return "", fmt.Errorf("cache: miss")
	}
	return v, nil
}

func (f *fakeCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	if ttl > 0 {
		f.expires[key] = f.now().Add(ttl)
	} else {
		delete(f.expires, key)
	}
	return nil
}

func (f *fakeCache) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSetNX {
		return false, fmt.Errorf("cache: unavailable")
	}
	if _, ok := f.values[key]; ok && !f.expiredLocked(key) {
		return false, nil
	}
	f.values[key] = value
	if ttl > 0 {
		f.expires[key] = f.now().Add(ttl)
	}
	return true, nil
}

func (f *fakeCache) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.values[key]
	return ok && !f.expiredLocked(key), nil
}

func (f *fakeCache) Del(_ context.Context, keys ...string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			delete(f.values, key)
			delete(f.expires, key)
			n++
		}
	}
	return n, nil
}

func (f *fakeCache) SAdd(_ context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.sets[key]
	if !ok {
		set = make(map[string]struct{})
		f.sets[key] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	return nil
}

func (f *fakeCache) SRem(_ context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range members {
		delete(f.sets[key], m)
	}
	return nil
}

func (f *fakeCache) SMembers(_ context.Context, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sets[key]))
	for m := range f.sets[key] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeCache) Ping(context.Context) error { return nil }
func (f *fakeCache) Close() error               { return nil }
