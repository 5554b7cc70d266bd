package ipc

import (
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/rs/zerolog"

	"github.com/screenruster/screenruster/internal/apperror"
	"github.com/screenruster/screenruster/internal/config"
)

const (
	gnomeName  = "org.gnome.ScreenSaver"
	gnomePath  = "/org/gnome/ScreenSaver"
	gnomeIface = "org.gnome.ScreenSaver"

	privateName  = "meh.rust.ScreenSaver"
	privatePath  = "/meh/rust/ScreenSaver"
	privateIface = "meh.rust.ScreenSaver"

	login1Name = "org.freedesktop.login1"
	login1Path = "/org/freedesktop/login1"
)

// Bus names, object paths, and interface names for both exported
// surfaces, exported so cmd/screenruster can place its client calls
// without duplicating these strings.
const (
	GnomeBusName = gnomeName
	GnomePath    = gnomePath
	GnomeIface   = gnomeIface

	PrivateBusName = privateName
	PrivatePath    = privatePath
	PrivateIface   = privateIface
)

// Service is the session-bus front end described in spec.md §4.6. It
// owns the bus connection, the login1 sleep watcher, and forwards
// every inbound call to the Coordinator as a Request, blocking on the
// Reply channel for calls that need one.
type Service struct {
	requests chan Request
	cfg      config.Interface
	conn     *dbus.Conn
	login    *login1Conn
	delayFD  *os.File
	log      zerolog.Logger
}

// Requests returns the channel the Coordinator selects on.
func (s *Service) Requests() <-chan Request { return s.requests }

// New connects to the session bus, registers both well-known names,
// exports the screensaver interfaces, and starts watching logind for
// sleep/resume. It returns apperror.BusRegistrationConflict if another
// screensaver already owns either name, or apperror.BusUnavailable if
// the session bus itself can't be reached.
func New(cfg config.Interface, log zerolog.Logger) (*Service, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, apperror.BusUnavailable{Reason: err}
	}

	s := &Service{
		requests: make(chan Request, 32),
		cfg:      cfg,
		conn:     conn,
		log:      log.With().Str("component", "ipc").Logger(),
	}

	for _, name := range []string{gnomeName, privateName} {
		reply, err := conn.RequestName(name, dbus.NameFlagDoNotQueue)
		if err != nil {
			conn.Close()
			return nil, apperror.BusUnavailable{Reason: err}
		}
		if reply != dbus.RequestNameReplyPrimaryOwner {
			conn.Close()
			return nil, apperror.BusRegistrationConflict{Name: name}
		}
	}

	gnome := &gnomeObject{s: s}
	if err := conn.Export(gnome, gnomePath, gnomeIface); err != nil {
		conn.Close()
		return nil, fmt.Errorf("exporting %s: %w", gnomeIface, err)
	}
	if err := conn.Export(introspect.Introspectable(gnomeIntrospectXML), gnomePath, "org.freedesktop.DBus.Introspectable"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("exporting introspection for %s: %w", gnomeIface, err)
	}

	priv := &privateObject{s: s}
	if err := conn.Export(priv, privatePath, privateIface); err != nil {
		conn.Close()
		return nil, fmt.Errorf("exporting %s: %w", privateIface, err)
	}
	if err := conn.Export(introspect.Introspectable(privateIntrospectXML), privatePath, "org.freedesktop.DBus.Introspectable"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("exporting introspection for %s: %w", privateIface, err)
	}

	if err := s.watchSleep(); err != nil {
		s.log.Warn().Err(err).Msg("could not subscribe to logind sleep signals, suspend/resume will not be relayed")
	} else if err := s.inhibitSleep(); err != nil {
		s.log.Warn().Err(err).Msg("could not acquire initial sleep delay inhibitor")
	}

	return s, nil
}

// call performs the synchronous call/reply round-trip shared by every
// exported bus method: send a Request carrying a fresh Reply channel
// and block for the Coordinator's Response.
func (s *Service) call(req Request) Response {
	req.Reply = make(chan Response, 1)
	s.requests <- req
	return <-req.Reply
}

// ignored reports whether operation has been disabled by the
// [interface] ignore list, logging at Debug when it has.
func (s *Service) ignored(operation string) bool {
	if s.cfg.Ignores(operation) {
		s.log.Debug().Str("operation", operation).Msg("ignoring operation per configuration")
		return true
	}
	return false
}

// SignalActiveChanged emits ActiveChanged on both exported objects.
// Called by the Coordinator whenever Session.StartedSince transitions
// to/from nil.
func (s *Service) SignalActiveChanged(active bool) {
	s.emit(gnomePath, gnomeIface, "ActiveChanged", active)
	s.emit(privatePath, privateIface, "ActiveChanged", active)
}

// SignalSessionIdleChanged emits SessionIdleChanged on both exported
// objects. The Coordinator does not call it.
func (s *Service) SignalSessionIdleChanged(idle bool) {
	s.emit(gnomePath, gnomeIface, "SessionIdleChanged", idle)
	s.emit(privatePath, privateIface, "SessionIdleChanged", idle)
}

// SignalAuthenticationRequestBegin/End bracket a password check so
// desktop shells can, for example, suppress notifications.
func (s *Service) SignalAuthenticationRequestBegin() {
	s.emit(privatePath, privateIface, "AuthenticationRequestBegin")
}

func (s *Service) SignalAuthenticationRequestEnd() {
	s.emit(privatePath, privateIface, "AuthenticationRequestEnd")
}

func (s *Service) emit(path dbus.ObjectPath, iface, member string, args ...interface{}) {
	if err := s.conn.Emit(path, iface+"."+member, args...); err != nil {
		s.log.Warn().Err(err).Str("signal", member).Msg("failed to emit bus signal")
	}
}

// Close tears down the bus connection and the login1 watcher.
func (s *Service) Close() error {
	if s.login != nil {
		s.login.Close()
	}
	return s.conn.Close()
}
