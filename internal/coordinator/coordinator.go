// Package coordinator implements the Coordinator described in
// spec.md §4.1: the single-threaded state machine that multiplexes
// the Locker, Timer, Authenticator, and IPC peers and owns the
// session state (Session) they all act on. See spec.md §3 for the
// invariants it must preserve between event-loop steps.
package coordinator

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/screenruster/screenruster/internal/apperror"
	"github.com/screenruster/screenruster/internal/auth"
	"github.com/screenruster/screenruster/internal/config"
	"github.com/screenruster/screenruster/internal/ipc"
	"github.com/screenruster/screenruster/internal/locker"
	"github.com/screenruster/screenruster/internal/timer"
)

// activation is the ACTIVATION debounce from spec.md §8 property 9: two
// Locker.Activity events closer together than this do not both count
// as "the user is back", once the saver auto-stopped. The spec flags
// this as a latency trade-off that should become configurable in a
// future revision; this implementation keeps it fixed.
const activation = time.Second

// Coordinator owns Session and is the sole consumer of all four peer
// channels. All of its mutable state is owned exclusively by run's
// goroutine.
type Coordinator struct {
	locker LockerPeer
	auth   AuthPeer
	ipc    IPCPeer
	timer  TimerPeer

	newTimer func(config.Timer) TimerPeer
	cfg      *config.Config

	staticThrottle bool
	onSuspend      config.OnSuspend

	session *Session

	pendingIdleReports map[uint64]chan ipc.Response
	nextReportID       uint64

	log zerolog.Logger
}

// Spawn starts the Coordinator's event loop over already-running
// peers. newTimer builds a fresh Timer from a [timer] config snapshot;
// it's injected (rather than called directly) so Reload can replace
// the Timer without the Coordinator needing to know how to translate
// config.Timer into timer.Config.
func Spawn(l LockerPeer, t TimerPeer, a AuthPeer, i IPCPeer, cfg *config.Config, newTimer func(config.Timer) TimerPeer, log zerolog.Logger) *Coordinator {
	c := &Coordinator{
		locker:             l,
		auth:               a,
		ipc:                i,
		timer:              t,
		newTimer:           newTimer,
		cfg:                cfg,
		staticThrottle:     cfg.Saver().Throttle,
		onSuspend:          cfg.Locker().OnSuspend,
		session:            newSession(),
		pendingIdleReports: make(map[uint64]chan ipc.Response),
		log:                log.With().Str("component", "coordinator").Logger(),
	}
	go c.run()
	return c
}

func (c *Coordinator) run() {
	for {
		select {
		case resp, ok := <-c.timer.Responses():
			if !ok {
				// The Timer is the only peer whose loss is fatal for the
				// whole daemon: without it the screen can never unlock.
				c.log.Fatal().Err(apperror.TimerChannelClosed{}).Msg("timer peer died")
				return
			}
			c.handleTimerResponse(resp)

		case resp, ok := <-c.locker.Responses():
			if !ok {
				return
			}
			c.handleLockerResponse(resp)

		case resp, ok := <-c.auth.Responses():
			if !ok {
				return
			}
			c.handleAuthResponse(resp)

		case req, ok := <-c.ipc.Requests():
			if !ok {
				return
			}
			c.handleIPCRequest(req)
		}
	}
}

func (c *Coordinator) startSaver() {
	c.locker.Start()
	now := time.Now()
	c.session.StartedSince = &now
	c.ipc.SignalActiveChanged(true)
	c.timer.Started()
}

func (c *Coordinator) handleTimerResponse(r timer.Response) {
	switch r.Kind {
	case timer.Start:
		if c.session.SuspendedSince != nil {
			return
		}
		if len(c.session.Inhibitors) > 0 {
			c.timer.ResetIdle()
			return
		}
		c.startSaver()

	case timer.Lock:
		if c.session.StartedSince == nil {
			return
		}
		c.locker.Lock()
		now := time.Now()
		c.session.LockedSince = &now
		c.timer.Locked()

	case timer.Blank:
		if c.session.SuspendedSince != nil || len(c.session.Inhibitors) > 0 {
			return
		}
		c.locker.Power(false)
		now := time.Now()
		c.session.BlankedSince = &now
		c.timer.Blanked()

	case timer.Heartbeat:
		c.locker.Sanitize()

	case timer.Timeout:
		c.locker.Timeout(r.ID)

	case timer.ReportResult:
		c.fulfillIdleReport(r)

	case timer.Suspended, timer.Resumed:
		// Acknowledgements only; Session.SuspendedSince is set and
		// cleared directly by handlePrepareForSleep.
	}
}

func (c *Coordinator) handleLockerResponse(r locker.Response) {
	switch r.Kind {
	case locker.Activity:
		c.handleActivity()

	case locker.Password:
		c.ipc.SignalAuthenticationRequestBegin()
		c.auth.Authenticate(r.Password)

	case locker.Stopped:
		c.session.StartedSince = nil
		c.session.LockedSince = nil
		c.ipc.SignalActiveChanged(false)
		c.timer.Stopped()

	case locker.NeedTimeout:
		c.timer.SetTimeout(r.ID, r.Seconds)

	case locker.CancelTimeoutAck:
		c.timer.CancelTimeout(r.ID)

	case locker.Error:
		c.log.Warn().Err(r.Err).Msg("locker reported an operator-visible error")
	}
}

// handleActivity implements the four Locker.Activity rows of the
// state table: dropped while suspended, un-blanks first if blanked,
// auto-stops an unlocked saver once it's been up for ACTIVATION
// seconds, and otherwise just resets the idle clock if nothing has
// started yet. Activity while started-and-locked is a deliberate
// no-op: only a successful Password unlocks.
func (c *Coordinator) handleActivity() {
	if c.session.SuspendedSince != nil {
		return
	}
	if c.session.BlankedSince != nil {
		c.locker.Power(true)
		c.session.BlankedSince = nil
		c.timer.Unblanked()
		return
	}
	switch {
	case c.session.StartedSince != nil && c.session.LockedSince == nil:
		if time.Since(*c.session.StartedSince) >= activation {
			c.locker.Stop()
		}
	case c.session.StartedSince == nil:
		c.timer.ResetIdle()
	}
}

func (c *Coordinator) handleAuthResponse(r auth.Response) {
	switch r.Kind {
	case auth.Success:
		c.locker.Auth(true)
		c.locker.Stop()
		c.ipc.SignalAuthenticationRequestEnd()
	case auth.Failure:
		c.locker.Auth(false)
		c.ipc.SignalAuthenticationRequestEnd()
	}
}

func (c *Coordinator) fulfillIdleReport(r timer.Response) {
	reply, ok := c.pendingIdleReports[r.ID]
	if !ok {
		return
	}
	delete(c.pendingIdleReports, r.ID)
	reply <- ipc.Response{U64: uint64(r.IdleFor.Seconds())}
}
