package ipc

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// gnomeIntrospectXML and privateIntrospectXML describe the exported
// objects for clients (Firefox, GTK, etc.) that introspect before
// calling; kept as plain string constants rather than embedded files
// since, unlike coltwillcox-inhibitor, this service owns both
// interfaces it introspects rather than mirroring a third party's.
const gnomeIntrospectXML = `
<interface name="org.gnome.ScreenSaver">
  <method name="Lock"/>
  <method name="Cycle"/>
  <method name="SetActive"><arg type="b" direction="in"/></method>
  <method name="GetActive"><arg type="b" direction="out"/></method>
  <method name="GetActiveTime"><arg type="u" direction="out"/></method>
  <method name="GetSessionIdle"><arg type="b" direction="out"/></method>
  <method name="GetSessionIdleTime"><arg type="u" direction="out"/></method>
  <method name="SimulateUserActivity"/>
  <method name="Inhibit">
    <arg type="s" direction="in"/>
    <arg type="s" direction="in"/>
    <arg type="u" direction="out"/>
  </method>
  <method name="UnInhibit"><arg type="u" direction="in"/></method>
  <method name="Throttle">
    <arg type="s" direction="in"/>
    <arg type="s" direction="in"/>
    <arg type="u" direction="out"/>
  </method>
  <method name="UnThrottle"><arg type="u" direction="in"/></method>
  <signal name="ActiveChanged"><arg type="b"/></signal>
  <signal name="SessionIdleChanged"><arg type="b"/></signal>
</interface>`

const privateIntrospectXML = `
<interface name="meh.rust.ScreenSaver">
  <method name="Lock"/>
  <method name="Cycle"/>
  <method name="SetActive"><arg type="b" direction="in"/></method>
  <method name="GetActive"><arg type="b" direction="out"/></method>
  <method name="GetActiveTime"><arg type="u" direction="out"/></method>
  <method name="GetSessionIdle"><arg type="b" direction="out"/></method>
  <method name="GetSessionIdleTime"><arg type="u" direction="out"/></method>
  <method name="SimulateUserActivity"/>
  <method name="Inhibit">
    <arg type="s" direction="in"/>
    <arg type="s" direction="in"/>
    <arg type="u" direction="out"/>
  </method>
  <method name="UnInhibit"><arg type="u" direction="in"/></method>
  <method name="Throttle">
    <arg type="s" direction="in"/>
    <arg type="s" direction="in"/>
    <arg type="u" direction="out"/>
  </method>
  <method name="UnThrottle"><arg type="u" direction="in"/></method>
  <method name="Suspend">
    <arg type="s" direction="in"/>
    <arg type="s" direction="in"/>
    <arg type="u" direction="out"/>
  </method>
  <method name="Resume"><arg type="u" direction="in"/></method>
  <method name="Reload">
    <arg type="s" direction="in"/>
    <arg type="b" direction="out"/>
  </method>
  <signal name="ActiveChanged"><arg type="b"/></signal>
  <signal name="SessionIdleChanged"><arg type="b"/></signal>
  <signal name="AuthenticationRequestBegin"/>
  <signal name="AuthenticationRequestEnd"/>
</interface>`

// gnomeObject is exported at org.gnome.ScreenSaver for compatibility
// with desktop clients that only know the GNOME interface (Firefox's
// inhibit-on-fullscreen-video path, xdg-screensaver, etc).
type gnomeObject struct{ s *Service }

// privateObject is exported at meh.rust.ScreenSaver and additionally
// carries the daemon-management calls (Suspend/Resume/Reload) that
// have no GNOME equivalent.
type privateObject struct{ s *Service }

func (o *gnomeObject) Lock() *dbus.Error                       { return o.s.doLock() }
func (o *gnomeObject) Cycle() *dbus.Error                       { return o.s.doCycle() }
func (o *gnomeObject) SetActive(active bool) *dbus.Error        { return o.s.doSetActive(active) }
func (o *gnomeObject) GetActive() (bool, *dbus.Error)           { return o.s.doGetActive() }
func (o *gnomeObject) GetActiveTime() (uint32, *dbus.Error)     { return o.s.doGetActiveTime() }
func (o *gnomeObject) GetSessionIdle() (bool, *dbus.Error)      { return o.s.doGetSessionIdle() }
func (o *gnomeObject) GetSessionIdleTime() (uint32, *dbus.Error) { return o.s.doGetSessionIdleTime() }
func (o *gnomeObject) SimulateUserActivity() *dbus.Error        { return o.s.doSimulateUserActivity() }
func (o *gnomeObject) Inhibit(app, reason string) (uint32, *dbus.Error) {
	return o.s.doInhibit(app, reason)
}
func (o *gnomeObject) UnInhibit(cookie uint32) *dbus.Error { return o.s.doUnInhibit(cookie) }
func (o *gnomeObject) Throttle(app, reason string) (uint32, *dbus.Error) {
	return o.s.doThrottle(app, reason)
}
func (o *gnomeObject) UnThrottle(cookie uint32) *dbus.Error { return o.s.doUnThrottle(cookie) }

func (o *privateObject) Lock() *dbus.Error                       { return o.s.doLock() }
func (o *privateObject) Cycle() *dbus.Error                       { return o.s.doCycle() }
func (o *privateObject) SetActive(active bool) *dbus.Error        { return o.s.doSetActive(active) }
func (o *privateObject) GetActive() (bool, *dbus.Error)           { return o.s.doGetActive() }
func (o *privateObject) GetActiveTime() (uint32, *dbus.Error)     { return o.s.doGetActiveTime() }
func (o *privateObject) GetSessionIdle() (bool, *dbus.Error)      { return o.s.doGetSessionIdle() }
func (o *privateObject) GetSessionIdleTime() (uint32, *dbus.Error) { return o.s.doGetSessionIdleTime() }
func (o *privateObject) SimulateUserActivity() *dbus.Error        { return o.s.doSimulateUserActivity() }
func (o *privateObject) Inhibit(app, reason string) (uint32, *dbus.Error) {
	return o.s.doInhibit(app, reason)
}
func (o *privateObject) UnInhibit(cookie uint32) *dbus.Error { return o.s.doUnInhibit(cookie) }
func (o *privateObject) Throttle(app, reason string) (uint32, *dbus.Error) {
	return o.s.doThrottle(app, reason)
}
func (o *privateObject) UnThrottle(cookie uint32) *dbus.Error { return o.s.doUnThrottle(cookie) }
func (o *privateObject) Suspend(app, reason string) (uint32, *dbus.Error) {
	return o.s.doSuspend(app, reason)
}
func (o *privateObject) Resume(cookie uint32) *dbus.Error { return o.s.doResume(cookie) }
func (o *privateObject) Reload(path string) (bool, *dbus.Error) { return o.s.doReload(path) }

// The do* methods hold the actual call/reply logic shared by both
// exported objects: check the ignore list, round-trip through the
// Coordinator, and translate its Response into the D-Bus return
// shape.

func ignoredErr(operation string) *dbus.Error {
	return dbus.MakeFailedError(fmt.Errorf("operation %q is disabled by configuration", operation))
}

func (s *Service) doLock() *dbus.Error {
	if s.ignored("Lock") {
		return ignoredErr("Lock")
	}
	s.call(Request{Kind: Lock})
	return nil
}

func (s *Service) doCycle() *dbus.Error {
	// Cycling to a different saver mid-session has no effect here: the
	// saver a window is running stays fixed for the session's duration.
	return nil
}

func (s *Service) doSetActive(active bool) *dbus.Error {
	if s.ignored("SetActive") {
		return ignoredErr("SetActive")
	}
	s.call(Request{Kind: SetActive, Bool: active})
	return nil
}

func (s *Service) doGetActive() (bool, *dbus.Error) {
	r := s.call(Request{Kind: GetActive})
	return r.Bool, nil
}

func (s *Service) doGetActiveTime() (uint32, *dbus.Error) {
	r := s.call(Request{Kind: GetActiveTime})
	return uint32(r.U64), nil
}

func (s *Service) doGetSessionIdle() (bool, *dbus.Error) {
	r := s.call(Request{Kind: GetSessionIdle})
	return r.Bool, nil
}

func (s *Service) doGetSessionIdleTime() (uint32, *dbus.Error) {
	r := s.call(Request{Kind: GetSessionIdleTime})
	return uint32(r.U64), nil
}

func (s *Service) doSimulateUserActivity() *dbus.Error {
	s.call(Request{Kind: SimulateUserActivity})
	return nil
}

func (s *Service) doInhibit(app, reason string) (uint32, *dbus.Error) {
	if s.ignored("Inhibit") {
		return 0, ignoredErr("Inhibit")
	}
	r := s.call(Request{Kind: Inhibit, App: app, Reason: reason})
	return r.Cookie, nil
}

func (s *Service) doUnInhibit(cookie uint32) *dbus.Error {
	r := s.call(Request{Kind: UnInhibit, Cookie: cookie})
	if r.Err != nil {
		return dbus.MakeFailedError(r.Err)
	}
	return nil
}

func (s *Service) doThrottle(app, reason string) (uint32, *dbus.Error) {
	if s.ignored("Throttle") {
		return 0, ignoredErr("Throttle")
	}
	r := s.call(Request{Kind: Throttle, App: app, Reason: reason})
	return r.Cookie, nil
}

func (s *Service) doUnThrottle(cookie uint32) *dbus.Error {
	r := s.call(Request{Kind: UnThrottle, Cookie: cookie})
	if r.Err != nil {
		return dbus.MakeFailedError(r.Err)
	}
	return nil
}

func (s *Service) doSuspend(app, reason string) (uint32, *dbus.Error) {
	if s.ignored("Suspend") {
		return 0, ignoredErr("Suspend")
	}
	r := s.call(Request{Kind: Suspend, App: app, Reason: reason})
	return r.Cookie, nil
}

func (s *Service) doResume(cookie uint32) *dbus.Error {
	r := s.call(Request{Kind: Resume, Cookie: cookie})
	if r.Err != nil {
		return dbus.MakeFailedError(r.Err)
	}
	return nil
}

func (s *Service) doReload(path string) (bool, *dbus.Error) {
	r := s.call(Request{Kind: Reload, Path: path})
	if r.Err != nil {
		return false, dbus.MakeFailedError(r.Err)
	}
	return true, nil
}
