package coordinator

import (
	"time"

	"github.com/screenruster/screenruster/internal/auth"
	"github.com/screenruster/screenruster/internal/ipc"
	"github.com/screenruster/screenruster/internal/locker"
	"github.com/screenruster/screenruster/internal/timer"
)

// LockerPeer, TimerPeer, AuthPeer, and IPCPeer narrow the concrete
// peer types down to exactly what the Coordinator calls. They're
// exported so cmd/screenruster can spell the newTimer factory's return
// type in Spawn, and so tests (in this package or elsewhere) can
// substitute fakes without a real X server, PAM stack, or session bus.
type LockerPeer interface {
	Responses() <-chan locker.Response
	Start()
	Lock()
	Auth(ok bool)
	Stop()
	Power(on bool)
	Throttle(on bool)
	Sanitize()
	Timeout(window uint64)
}

type TimerPeer interface {
	Responses() <-chan timer.Response
	ResetIdle()
	ResetBlank()
	Suspend(wall time.Time)
	Resume()
	Blanked()
	Unblanked()
	Started()
	Locked()
	Stopped()
	Report(id uint64)
	SetTimeout(id uint64, seconds uint64)
	CancelTimeout(id uint64)
	Close()
}

type AuthPeer interface {
	Responses() <-chan auth.Response
	Authenticate(password string)
}

type IPCPeer interface {
	Requests() <-chan ipc.Request
	SignalActiveChanged(active bool)
	SignalSessionIdleChanged(idle bool)
	SignalAuthenticationRequestBegin()
	SignalAuthenticationRequestEnd()
}

var (
	_ LockerPeer = (*locker.Locker)(nil)
	_ TimerPeer  = (*timer.Timer)(nil)
	_ AuthPeer   = (*auth.Authenticator)(nil)
	_ IPCPeer    = (*ipc.Service)(nil)
)
