package ipc

import (
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
)

const login1Iface = "org.freedesktop.login1.Manager"

// login1Conn is a narrow wrapper around the subset of
// org.freedesktop.login1.Manager this daemon needs: taking a delay
// inhibitor before suspend, and hearing about PrepareForSleep. It
// plays the same one-call-one-method role that
// freedesktop/powermanagement/power.go's PowerManagement type played
// for the teacher, rewritten against godbus/dbus/v5 instead of the
// teacher's own client library since this connection talks to the
// system bus, not the session bus internal/ipc otherwise uses.
type login1Conn struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

func newLogin1Conn() (*login1Conn, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to system bus: %w", err)
	}
	return &login1Conn{
		conn: conn,
		obj:  conn.Object(login1Name, login1Path),
	}, nil
}

// Inhibit takes a logind inhibitor lock and returns the file
// descriptor that releases it when closed.
//
// what is one of "shutdown", "sleep", "idle", "handle-power-key", etc
// (possibly colon-joined); mode is "block" or "delay".
func (c *login1Conn) Inhibit(what, who, why, mode string) (*os.File, error) {
	var fd dbus.UnixFD
	call := c.obj.Call(login1Iface+".Inhibit", 0, what, who, why, mode)
	if call.Err != nil {
		return nil, call.Err
	}
	if err := call.Store(&fd); err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), "login1-inhibit"), nil
}

// Signals subscribes to PrepareForSleep and returns the raw signal
// channel; the caller is responsible for filtering to that member.
func (c *login1Conn) Signals() (<-chan *dbus.Signal, error) {
	if err := c.conn.AddMatchSignal(
		dbus.WithMatchInterface(login1Iface),
		dbus.WithMatchMember("PrepareForSleep"),
	); err != nil {
		return nil, err
	}
	ch := make(chan *dbus.Signal, 8)
	c.conn.Signal(ch)
	return ch, nil
}

func (c *login1Conn) Close() error {
	return c.conn.Close()
}

// watchSleep connects to the system bus, subscribes to
// PrepareForSleep, and starts the goroutine that relays it inward as
// a Request. It is a one-way notification: the Coordinator never
// replies to it.
func (s *Service) watchSleep() error {
	login, err := newLogin1Conn()
	if err != nil {
		return err
	}
	sig, err := login.Signals()
	if err != nil {
		login.Close()
		return err
	}
	s.login = login
	go s.sleepLoop(sig)
	return nil
}

// inhibitSleep takes the initial delay inhibitor that gives the
// Coordinator time to finish its on-suspend bookkeeping (applying any
// configured suspend policy, recording SuspendedSince) before the
// kernel actually suspends.
func (s *Service) inhibitSleep() error {
	fd, err := s.login.Inhibit("sleep", "ScreenRuster", "Preparing for sleep.", "delay")
	if err != nil {
		return err
	}
	s.delayFD = fd
	return nil
}

func (s *Service) sleepLoop(sig <-chan *dbus.Signal) {
	for signal := range sig {
		if signal.Name != login1Iface+".PrepareForSleep" || len(signal.Body) != 1 {
			continue
		}
		entering, ok := signal.Body[0].(bool)
		if !ok {
			continue
		}
		if entering {
			s.requests <- Request{Kind: PrepareForSleep, Bool: true}
			if s.delayFD != nil {
				s.delayFD.Close()
				s.delayFD = nil
			}
		} else {
			s.requests <- Request{Kind: PrepareForSleep, Bool: false}
			if err := s.inhibitSleep(); err != nil {
				s.log.Warn().Err(err).Msg("could not re-acquire sleep delay inhibitor after resume")
			}
		}
	}
}
