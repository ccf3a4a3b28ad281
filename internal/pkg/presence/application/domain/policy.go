package presence

import "time"

// State is the lifecycle state of a membership as derived by the timeout
// policy. DISCONNECTED is terminal: the sweep deletes the row.
type State int

const (
	StateActive State = iota
	StateAFK
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateAFK:
		return "afk"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Timeouts holds every lifecycle deadline in one place. Both the policy and
// anything user-visible must read from the same instance; a second source of
// truth for these numbers is a correctness bug, not a display nit.
type Timeouts struct {
	AFK                time.Duration // idle time before a member turns AFK
	DefaultDisconnect  time.Duration // idle time before a regular member is evicted
	ExtendedDisconnect time.Duration // eviction deadline for hosts and extended-session rooms
	GlobalSession      time.Duration // lounge-wide "seen recently" horizon, never evicts room rows
}

// DefaultTimeouts returns the authoritative constants: 15 minutes to AFK,
// 60 to eviction, 120 for hosts and extended rooms.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		AFK:                15 * time.Minute,
		DefaultDisconnect:  60 * time.Minute,
		ExtendedDisconnect: 120 * time.Minute,
		GlobalSession:      4 * time.Hour,
	}
}

// DisconnectFor returns the grace period before eviction. Hosts and members
// of extended-session rooms share the longer deadline so a host stepping
// away does not orphan the room.
func (t Timeouts) DisconnectFor(isHost, extendedSession bool) time.Duration {
	if isHost || extendedSession {
		return t.ExtendedDisconnect
	}
	return t.DefaultDisconnect
}

// Classify derives the lifecycle state of a membership from its last
// activity timestamp. The AFK boundary is inclusive on the AFK side: a
// member idle for exactly t.AFK is already AFK. The returned deadline is
// when the next transition is due; it is zero for DISCONNECTED.
func Classify(lastActivity, now time.Time, isHost, extendedSession bool, t Timeouts) (State, time.Time) {
	afkDeadline := lastActivity.Add(t.AFK)
	disconnectDeadline := lastActivity.Add(t.DisconnectFor(isHost, extendedSession))

	if now.Before(afkDeadline) {
		return StateActive, afkDeadline
	}
	if now.Before(disconnectDeadline) {
		return StateAFK, disconnectDeadline
	}
	return StateDisconnected, time.Time{}
}
