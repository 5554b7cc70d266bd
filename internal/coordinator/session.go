package coordinator

import (
	"time"

	"github.com/creachadair/mds/mapset"
)

// Session is the state the Coordinator owns exclusively, mutated only
// from its event loop. See spec.md §3 "Session state".
//
// Invariants (must hold between event-loop steps):
//  1. LockedSince != nil implies StartedSince != nil.
//  2. The saver is stopped only when LockedSince == nil, or
//     immediately following an Auth Success.
//  3. SuspendedSince != nil implies activity events are dropped and
//     timers produce no state-changing responses.
type Session struct {
	LockedSince    *time.Time
	StartedSince   *time.Time
	BlankedSince   *time.Time
	SuspendedSince *time.Time

	Inhibitors mapset.Set[uint32]
	Throttlers mapset.Set[uint32]
	Suspenders mapset.Set[uint32]
}

func newSession() *Session {
	return &Session{
		Inhibitors: mapset.New[uint32](),
		Throttlers: mapset.New[uint32](),
		Suspenders: mapset.New[uint32](),
	}
}
