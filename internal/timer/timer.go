// Package timer drives the idle/lock/blank/heartbeat state machine
// described in spec.md §4.2. It owns no window or saver state; it only
// watches elapsed time (corrected for suspend) and emits best-effort
// notifications for the Coordinator to act on.
package timer

import (
	"time"

	"github.com/rs/zerolog"
)

// RequestKind identifies the shape of a Request.
type RequestKind int

const (
	ResetIdle RequestKind = iota
	ResetBlank
	Suspend
	Resume
	Blanked
	Unblanked
	Started
	Locked
	Stopped
	Report
	SetTimeout
	CancelTimeout
)

// Request is a single instruction sent to the Timer. Which fields are
// meaningful depends on Kind; see the constructor functions below.
type Request struct {
	Kind    RequestKind
	ID      uint64
	Seconds uint64
	Wall    time.Time
}

func NewResetIdle() Request              { return Request{Kind: ResetIdle} }
func NewResetBlank() Request             { return Request{Kind: ResetBlank} }
func NewSuspend(wall time.Time) Request  { return Request{Kind: Suspend, Wall: wall} }
func NewResume() Request                 { return Request{Kind: Resume} }
func NewBlanked() Request                { return Request{Kind: Blanked} }
func NewUnblanked() Request              { return Request{Kind: Unblanked} }
func NewStarted() Request                { return Request{Kind: Started} }
func NewLocked() Request                 { return Request{Kind: Locked} }
func NewStopped() Request                { return Request{Kind: Stopped} }
func NewReport(id uint64) Request        { return Request{Kind: Report, ID: id} }
func NewCancelTimeout(id uint64) Request { return Request{Kind: CancelTimeout, ID: id} }
func NewSetTimeout(id uint64, seconds uint64) Request {
	return Request{Kind: SetTimeout, ID: id, Seconds: seconds}
}

// ResponseKind identifies the shape of a Response.
type ResponseKind int

const (
	Start ResponseKind = iota
	Lock
	Blank
	Heartbeat
	Suspended
	Resumed
	Timeout
	ReportResult
)

// Response is a single notification emitted by the Timer.
type Response struct {
	Kind ResponseKind
	ID   uint64
	Wall time.Time

	// IdleFor and ActiveFor are only populated on ReportResult, in
	// answer to a Report request. The Coordinator uses IdleFor to serve
	// GetSessionIdleTime; GetActiveTime is computed from
	// Session.StartedSince, not from ActiveFor.
	IdleFor   time.Duration
	ActiveFor time.Duration
}

type ticket struct {
	started time.Time
	seconds uint64
}

// Config are the static parameters that never change for the lifetime
// of a Timer (the spec's Reload only touches the Coordinator's view of
// [timer], which restarts the Timer; see internal/coordinator).
type Config struct {
	Beat    time.Duration
	Timeout time.Duration
	Lock    *time.Duration
	Blank   *time.Duration
}

// Timer is the idle/lock/blank/heartbeat driver. Spawn starts its
// goroutine; all of its state is owned exclusively by that goroutine.
type Timer struct {
	requests  chan Request
	responses chan Response
	log       zerolog.Logger
}

// Spawn starts the Timer's goroutine and returns a handle to it.
func Spawn(cfg Config, log zerolog.Logger) *Timer {
	return spawn(cfg, log, time.Second)
}

// spawn is Spawn with an overridable tick period, so tests can drive
// the algorithm on a millisecond clock instead of waiting on real
// one-second ticks.
func spawn(cfg Config, log zerolog.Logger, period time.Duration) *Timer {
	t := &Timer{
		requests:  make(chan Request, 64),
		responses: make(chan Response, 16),
		log:       log.With().Str("component", "timer").Logger(),
	}
	go t.run(cfg, period)
	return t
}

// Responses returns the channel the Coordinator selects on.
func (t *Timer) Responses() <-chan Response { return t.responses }

func (t *Timer) send(r Request) { t.requests <- r }

func (t *Timer) ResetIdle()                         { t.send(NewResetIdle()) }
func (t *Timer) ResetBlank()                        { t.send(NewResetBlank()) }
func (t *Timer) Suspend(wall time.Time)             { t.send(NewSuspend(wall)) }
func (t *Timer) Resume()                            { t.send(NewResume()) }
func (t *Timer) Blanked()                           { t.send(NewBlanked()) }
func (t *Timer) Unblanked()                         { t.send(NewUnblanked()) }
func (t *Timer) Started()                           { t.send(NewStarted()) }
func (t *Timer) Locked()                            { t.send(NewLocked()) }
func (t *Timer) Stopped()                           { t.send(NewStopped()) }
func (t *Timer) Report(id uint64)                   { t.send(NewReport(id)) }
func (t *Timer) CancelTimeout(id uint64)             { t.send(NewCancelTimeout(id)) }
func (t *Timer) SetTimeout(id uint64, seconds uint64) { t.send(NewSetTimeout(id, seconds)) }

// Close stops the Timer's goroutine. Used by the Coordinator when a
// Reload needs to apply new [timer] values: since Config is fixed for
// a Timer's lifetime, a reload replaces the whole Timer rather than
// mutating it in place.
func (t *Timer) Close() { close(t.requests) }

// emit is the Timer's only way of talking to the Coordinator. Per
// spec.md §4.2 "Failure semantics", timer output is best-effort: if the
// response channel is full, the Timer logs and exits rather than
// blocking the tick loop forever.
func (t *Timer) emit(r Response) bool {
	select {
	case t.responses <- r:
		return true
	default:
		t.log.Error().Msg("response channel full, timer exiting")
		return false
	}
}

func (t *Timer) run(cfg Config, period time.Duration) {
	defer close(t.responses)

	var (
		idleAt         = time.Now()
		unblankedAt    = time.Now()
		startAt        time.Time
		started        bool
		blanked        bool
		lockSent       bool
		suspendedSince *time.Time
		correction     time.Duration
		resumedPending bool
		lastHeartbeat  = time.Now()
		timeouts       = make(map[uint64]ticket)
	)

	tick := time.NewTicker(period)
	defer tick.Stop()

	for {
		select {
		case req, ok := <-t.requests:
			if !ok {
				return
			}
			switch req.Kind {
			case ResetIdle:
				idleAt = time.Now()
				correction = 0
			case ResetBlank:
				unblankedAt = time.Now()
			case Suspend:
				// Strip the monotonic reading: real suspend stops
				// CLOCK_MONOTONIC, so a monotonic delta on resume would
				// read ~0 regardless of how long the sleep actually
				// lasted. Only the wall-clock delta reflects it.
				now := req.Wall.Round(0)
				suspendedSince = &now
			case Resume:
				if suspendedSince != nil {
					correction += time.Now().Round(0).Sub(*suspendedSince)
					if correction < 0 {
						correction = 0
					}
					suspendedSince = nil
					resumedPending = true
				}
			case Blanked:
				blanked = true
			case Unblanked:
				blanked = false
				unblankedAt = time.Now()
			case Started:
				started = true
				startAt = time.Now()
			case Locked:
				lockSent = true
			case Stopped:
				started = false
				lockSent = false
				startAt = time.Time{}
			case Report:
				idle := time.Since(idleAt) + correction
				var active time.Duration
				if started {
					active = time.Since(startAt)
				}
				if !t.emit(Response{Kind: ReportResult, ID: req.ID, IdleFor: idle, ActiveFor: active}) {
					return
				}
			case SetTimeout:
				timeouts[req.ID] = ticket{started: time.Now(), seconds: req.Seconds}
			case CancelTimeout:
				delete(timeouts, req.ID)
			}
			continue

		case <-tick.C:
			// fall through to the one-second tick handling below.
		}

		now := time.Now()

		if now.Sub(lastHeartbeat) >= cfg.Beat {
			lastHeartbeat = now
			if !t.emit(Response{Kind: Heartbeat}) {
				return
			}
		}

		if suspendedSince != nil {
			continue
		}

		if resumedPending {
			resumedPending = false
			if !t.emit(Response{Kind: Resumed}) {
				return
			}
		}

		for id, tk := range timeouts {
			if now.Sub(tk.started) >= time.Duration(tk.seconds)*time.Second {
				delete(timeouts, id)
				if !t.emit(Response{Kind: Timeout, ID: id}) {
					return
				}
			}
		}

		if cfg.Blank != nil && !blanked {
			base := unblankedAt
			if idleAt.After(base) {
				base = idleAt
			}
			if now.Sub(base)+correction >= *cfg.Blank {
				if !t.emit(Response{Kind: Blank}) {
					return
				}
			}
		}

		if !started {
			if now.Sub(idleAt)+correction >= cfg.Timeout {
				if !t.emit(Response{Kind: Start}) {
					return
				}
			}
		} else if cfg.Lock != nil && !lockSent {
			if now.Sub(startAt)+correction >= *cfg.Lock {
				if !t.emit(Response{Kind: Lock}) {
					return
				}
			}
		}
	}
}
