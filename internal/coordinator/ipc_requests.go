package coordinator

import (
	"time"

	"github.com/screenruster/screenruster/internal/config"
	"github.com/screenruster/screenruster/internal/ipc"
)

// handleIPCRequest answers every bus-originated Request. Synchronous
// calls reply on req.Reply; PrepareForSleep is the one notification
// that carries no Reply and expects none.
func (c *Coordinator) handleIPCRequest(req ipc.Request) {
	switch req.Kind {
	case ipc.Lock:
		if c.session.StartedSince == nil {
			c.startSaver()
		}
		c.lockIfNotLocked()
		req.Reply <- ipc.Response{}

	case ipc.SetActive:
		if req.Bool {
			if c.session.StartedSince == nil {
				c.startSaver()
			}
		} else if c.session.StartedSince != nil && c.session.LockedSince == nil {
			c.locker.Stop()
		}
		req.Reply <- ipc.Response{}

	case ipc.SimulateUserActivity:
		c.handleActivity()
		req.Reply <- ipc.Response{}

	case ipc.GetActive:
		req.Reply <- ipc.Response{Bool: c.session.StartedSince != nil}

	case ipc.GetActiveTime:
		var secs uint64
		if c.session.StartedSince != nil {
			secs = uint64(time.Since(*c.session.StartedSince).Seconds())
		}
		req.Reply <- ipc.Response{U64: secs}

	case ipc.GetSessionIdle:
		// This daemon doesn't distinguish forced-active from
		// idle-triggered active; both read as "the saver is up".
		req.Reply <- ipc.Response{Bool: c.session.StartedSince != nil}

	case ipc.GetSessionIdleTime:
		c.nextReportID++
		id := c.nextReportID
		c.pendingIdleReports[id] = req.Reply
		c.timer.Report(id)
		// Reply arrives later via fulfillIdleReport when the Timer's
		// ReportResult comes back.

	case ipc.Inhibit:
		cookie := freshCookie(c.session.Inhibitors)
		c.session.Inhibitors[cookie] = struct{}{}
		req.Reply <- ipc.Response{Cookie: cookie}

	case ipc.UnInhibit:
		delete(c.session.Inhibitors, req.Cookie)
		req.Reply <- ipc.Response{}

	case ipc.Throttle:
		first := len(c.session.Throttlers) == 0
		cookie := freshCookie(c.session.Throttlers)
		c.session.Throttlers[cookie] = struct{}{}
		if first && !c.staticThrottle {
			c.locker.Throttle(true)
		}
		req.Reply <- ipc.Response{Cookie: cookie}

	case ipc.UnThrottle:
		delete(c.session.Throttlers, req.Cookie)
		if len(c.session.Throttlers) == 0 && !c.staticThrottle {
			c.locker.Throttle(false)
		}
		req.Reply <- ipc.Response{}

	case ipc.Suspend:
		first := len(c.session.Suspenders) == 0
		cookie := freshCookie(c.session.Suspenders)
		c.session.Suspenders[cookie] = struct{}{}
		if first {
			c.timer.Suspend(time.Now())
		}
		req.Reply <- ipc.Response{Cookie: cookie}

	case ipc.Resume:
		delete(c.session.Suspenders, req.Cookie)
		if len(c.session.Suspenders) == 0 {
			c.timer.Resume()
		}
		req.Reply <- ipc.Response{}

	case ipc.Reload:
		err := c.reload(req.Path)
		req.Reply <- ipc.Response{Err: err}

	case ipc.PrepareForSleep:
		c.handlePrepareForSleep(req.Bool)
	}
}

func (c *Coordinator) lockIfNotLocked() {
	if c.session.LockedSince != nil {
		return
	}
	c.locker.Lock()
	now := time.Now()
	c.session.LockedSince = &now
	c.timer.Locked()
}

// handlePrepareForSleep implements the on-suspend policy from
// spec.md §6 [locker] on-suspend. Freezing the Timer on entry is
// unconditional: every policy needs Session.SuspendedSince accurate
// and Timer.Suspend called so idle time doesn't silently accrue
// across a real system sleep. The policy choice only changes what
// happens at resume, per the spec's flagged Open Question (resolved
// here as resume-time application).
func (c *Coordinator) handlePrepareForSleep(entering bool) {
	if entering {
		now := time.Now()
		c.session.SuspendedSince = &now
		c.timer.Suspend(now)
		return
	}

	c.session.SuspendedSince = nil
	switch c.onSuspend {
	case config.OnSuspendIgnore:
		c.timer.ResetIdle()
	case config.OnSuspendUseSystemTime:
		c.timer.Resume()
	case config.OnSuspendActivate:
		c.timer.Resume()
		if c.session.StartedSince == nil {
			c.startSaver()
		}
	case config.OnSuspendLock:
		c.timer.Resume()
		if c.session.StartedSince == nil {
			c.startSaver()
		}
		c.lockIfNotLocked()
	}
}

// reload re-reads the configuration file and, since only [timer]
// values affect the running Timer, replaces it wholesale with a fresh
// one built from the new values. Session state (locked_since
// included) is untouched, per spec.md §8 scenario S6.
func (c *Coordinator) reload(path string) error {
	if err := c.cfg.Reload(path); err != nil {
		return err
	}
	c.onSuspend = c.cfg.Locker().OnSuspend
	c.staticThrottle = c.cfg.Saver().Throttle

	old := c.timer
	c.timer = c.newTimer(c.cfg.Timer())
	old.Close()
	return nil
}
