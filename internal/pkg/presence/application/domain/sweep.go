package presence

import "time"

// SweepSummary is the complete externally observable result of one sweep
// run. There is no partial or streaming output.
type SweepSummary struct {
	UsersAFK          int `json:"users_afk"`
	UsersDisconnected int `json:"users_disconnected"`
	HostsTransferred  int `json:"hosts_transferred"`
	RoomsDeleted      int `json:"rooms_deleted"`
}

// Add accumulates per-room results into the run total.
func (s *SweepSummary) Add(r SweepRoomResult) {
	s.UsersAFK += r.MarkedAFK
	s.UsersDisconnected += r.Evicted
	if r.HostTransferred {
		s.HostsTransferred++
	}
	if r.RoomDeleted {
		s.RoomsDeleted++
	}
}

// EvictTarget names one membership to evict together with the guard cutoff:
// the delete applies only while last_activity is still at or before Cutoff,
// so a racing activity touch wins over the sweep.
type EvictTarget struct {
	UserKey string
	Cutoff  time.Time
}

// RoomSweepPlan is the set of transitions a sweep wants to apply to one
// room. The store applies the whole plan as a single atomic unit, with each
// step guarded by a cutoff condition so that a redundant or concurrent run
// observing already-updated rows is a no-op for those rows.
type RoomSweepPlan struct {
	RoomID string

	// MarkAFK lists members to flip to AFK. The guard (is_afk = false AND
	// last_activity <= AFKCutoff) means an already-AFK row keeps its
	// original afk_since; resetting it would push the disconnect deadline
	// out indefinitely.
	MarkAFK   []string
	AFKCutoff time.Time
	AFKSince  time.Time

	// ClearAFK lists members flagged AFK whose last_activity is newer than
	// the AFK cutoff; the sweep flips them back to active.
	ClearAFK []string

	Evict []EvictTarget
}

// Empty reports whether applying the plan could change anything beyond
// orphan-room cleanup.
func (p RoomSweepPlan) Empty() bool {
	return len(p.MarkAFK) == 0 && len(p.ClearAFK) == 0 && len(p.Evict) == 0
}

// SweepRoomResult reports what actually changed when a plan was applied.
type SweepRoomResult struct {
	MarkedAFK       int
	Evicted         int
	HostTransferred bool
	RoomDeleted     bool
}

// LeaveResult reports the durable side effects of removing one membership.
type LeaveResult struct {
	Removed     bool
	NewHostKey  string
	RoomDeleted bool
}
