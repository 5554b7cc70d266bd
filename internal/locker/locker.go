package locker

import (
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog"

	"github.com/screenruster/screenruster/internal/apperror"
	"github.com/screenruster/screenruster/internal/saver"
)

// Config is the Locker's static configuration, drawn from
// internal/config's Locker and Saver sections.
type Config struct {
	SaverNames     []string
	SaverArgs      func(name string) []string
	SaverConfig    func(name string) map[string]interface{}
	SaverTimeout   uint64 // seconds; start/stop hang detection window
	StaticThrottle bool
	DPMS           bool
}

// Locker is the per-display window/grab/saver manager. Spawn starts
// its goroutine; all mutable state (windows, grabs, saver handles,
// password buffers) is owned exclusively by that goroutine.
type Locker struct {
	requests  chan Request
	responses chan Response
	disp      display
	pool      *saver.Pool
	cfg       Config
	log       zerolog.Logger
}

// SpawnX11 connects to the real X server named by displayName (an
// empty name means $DISPLAY) and starts
// a Locker against it. This is the constructor cmd/screenruster uses;
// Spawn itself stays unexported-display so tests can substitute a
// fake without ever touching X11.
func SpawnX11(displayName string, cfg Config, log zerolog.Logger) (*Locker, error) {
	disp, err := newXGBDisplay(displayName)
	if err != nil {
		return nil, err
	}
	return Spawn(disp, cfg, log), nil
}

// Spawn takes an already-connected display and starts the Locker's
// event loop, which builds one window per screen.
func Spawn(disp display, cfg Config, log zerolog.Logger) *Locker {
	l := &Locker{
		requests:  make(chan Request, 32),
		responses: make(chan Response, 32),
		disp:      disp,
		pool:      saver.NewPool(log),
		cfg:       cfg,
		log:       log.With().Str("component", "locker").Logger(),
	}
	go l.run()
	return l
}

// Responses returns the channel the Coordinator selects on.
func (l *Locker) Responses() <-chan Response { return l.responses }

func (l *Locker) send(r Request) { l.requests <- r }

func (l *Locker) Start()               { l.send(NewStart()) }
func (l *Locker) Lock()                { l.send(NewLock()) }
func (l *Locker) Auth(ok bool)         { l.send(NewAuth(ok)) }
func (l *Locker) Stop()                { l.send(NewStop()) }
func (l *Locker) Power(on bool)        { l.send(NewPower(on)) }
func (l *Locker) Throttle(on bool)     { l.send(NewThrottle(on)) }
func (l *Locker) Sanitize()            { l.send(NewSanitize()) }
func (l *Locker) Activity()            { l.send(NewActivityPing()) }
func (l *Locker) Timeout(window uint64) { l.send(NewTimeout(window)) }

// Close stops the Locker's goroutine, which tears down its windows
// before closing the display connection.
func (l *Locker) Close() { close(l.requests) }

func (l *Locker) emit(r Response) {
	select {
	case l.responses <- r:
	default:
		l.log.Error().Msg("response channel full, dropping locker event")
	}
}

func (l *Locker) run() {
	defer close(l.responses)
	defer l.disp.Close()

	windows := make(map[uint32]*screenWindow)
	for i, geom := range l.disp.Screens() {
		win, err := l.disp.CreateWindow(i, geom)
		if err != nil {
			l.emit(Response{Kind: Error, Err: err})
			continue
		}
		windows[win] = newScreenWindow(i, win, geom)
		if err := l.disp.ObserveWindows(i); err != nil {
			l.log.Warn().Err(err).Int("screen", i).Msg("window observation failed")
		}
	}

	xevents := l.disp.Events()
	saverEvents := l.pool.Events()

	for {
		select {
		case req, ok := <-l.requests:
			if !ok {
				l.teardown(windows)
				return
			}
			l.handleRequest(req, windows)

		case ev := <-saverEvents:
			l.handleSaverEvent(ev, windows)

		case ev, ok := <-xevents:
			if !ok {
				continue
			}
			l.handleXEvent(ev, windows)
		}
	}
}

func (l *Locker) handleRequest(req Request, windows map[uint32]*screenWindow) {
	switch req.Kind {
	case Start:
		for _, w := range windows {
			l.startWindow(w)
		}
	case Lock:
		l.pool.Broadcast(saver.LockRequest())
	case Auth:
		if req.Bool {
			l.pool.Broadcast(saver.PasswordSuccessRequest())
		} else {
			l.pool.Broadcast(saver.PasswordFailureRequest())
		}
		for _, w := range windows {
			w.Checking = false
		}
	case Stop:
		for _, w := range windows {
			l.stopWindow(w)
		}
	case Power:
		if l.cfg.DPMS {
			l.disp.DPMS(!req.Bool)
		}
		for _, w := range windows {
			if w.Handle != nil {
				w.Handle.Send(saver.BlankRequest(!req.Bool))
			}
		}
	case Throttle:
		l.pool.Broadcast(saver.ThrottleRequest(req.Bool))
	case Sanitize:
		l.sanitize(windows)
	case ActivityPing:
		l.emit(Response{Kind: Activity})
	case TimeoutReq:
		if w, ok := windows[uint32(req.ID)]; ok {
			l.killHungSaver(w)
		}
	}
}

func (l *Locker) startWindow(w *screenWindow) {
	if err := l.disp.MapWindow(w.Window); err != nil {
		l.emit(Response{Kind: Error, Err: err})
		return
	}
	_ = l.disp.RaiseWindow(w.Window)

	name := l.pickSaver()
	w.resetForNewSession()
	w.SaverName = name

	args := []string{}
	if l.cfg.SaverArgs != nil {
		args = l.cfg.SaverArgs(name)
	}
	h, err := l.pool.Spawn(w.Window, name, args)
	if err != nil {
		l.emit(Response{Kind: Error, Err: err})
		return
	}
	w.Handle = h
	l.emit(Response{Kind: NeedTimeout, ID: uint64(w.Window), Seconds: l.cfg.SaverTimeout})
	w.stopTicket = true
	if l.cfg.StaticThrottle {
		h.Send(saver.ThrottleRequest(true))
	}

	l.applyGrabs(w)
}

func (l *Locker) applyGrabs(w *screenWindow) {
	kbOK, ptrOK, fatal := grabBoth(l.disp, w.Window)
	if !kbOK && !ptrOK {
		// Neither grab is held (grabBoth never tries the pointer once
		// the keyboard grab fails, so this covers every keyboard
		// failure): re-focus the screen onto our window and retry
		// once, per spec.md §4.3 grab discipline step 2.
		_ = l.disp.SetInputFocus(w.Window)
		kbOK, ptrOK, fatal = grabBoth(l.disp, w.Window)
	}
	w.KeyboardGrabbed = kbOK
	w.PointerGrabbed = ptrOK
	if fatal != nil {
		l.emit(Response{Kind: Error, Err: fatal})
	}
	if w.Handle != nil {
		w.Handle.Send(saver.SafetyRequest(w.safety()))
	}
}

func (l *Locker) pickSaver() string {
	if len(l.cfg.SaverNames) == 0 {
		return ""
	}
	return l.cfg.SaverNames[rand.IntN(len(l.cfg.SaverNames))]
}

func (l *Locker) stopWindow(w *screenWindow) {
	if w.Handle == nil {
		l.unmapAndUngrab(w)
		l.emit(Response{Kind: Stopped})
		return
	}
	w.State = Stopping
	w.Handle.Send(saver.StopRequest())
	l.emit(Response{Kind: NeedTimeout, ID: uint64(w.Window), Seconds: l.cfg.SaverTimeout})
	w.stopTicket = true
}

// teardown runs once, on Close, before the display connection itself
// is closed by run's deferred l.disp.Close(). It walks the pool
// rather than windows' own Handle fields so a saver whose window entry
// already went nil (mid-"stopped" handling) still gets killed instead
// of leaking past the daemon's own exit.
func (l *Locker) teardown(windows map[uint32]*screenWindow) {
	_ = l.disp.UngrabKeyboard()
	_ = l.disp.UngrabPointer()
	for _, win := range l.pool.Windows() {
		if h, ok := l.pool.Get(win); ok {
			h.Kill()
			h.Close()
		}
	}
	for _, w := range windows {
		if err := l.disp.DestroyWindow(w.Window); err != nil {
			l.log.Warn().Err(err).Uint32("window", w.Window).Msg("destroying window on shutdown")
		}
	}
}

func (l *Locker) unmapAndUngrab(w *screenWindow) {
	_ = l.disp.UngrabKeyboard()
	_ = l.disp.UngrabPointer()
	_ = l.disp.UnmapWindow(w.Window)
	w.KeyboardGrabbed = false
	w.PointerGrabbed = false
}

func (l *Locker) killHungSaver(w *screenWindow) {
	if _, ok := l.pool.Get(w.Window); !ok {
		return
	}
	if w.Handle != nil {
		phase := "start"
		if w.State == Stopping {
			phase = "stop"
		}
		w.Handle.Kill()
		w.State = Killed
		l.emit(Response{Kind: Error, Err: apperror.SaverHung{Window: w.Window, Phase: phase}})
	}
	// Window stays mapped, blanked, and locked: per spec.md §4.3's
	// SaverCrash/SaverHung handling the next start attempt picks a
	// saver fresh rather than trying to resume this one.
}

func (l *Locker) sanitize(windows map[uint32]*screenWindow) {
	for _, w := range windows {
		_ = l.disp.RaiseWindow(w.Window)
		if !w.PointerGrabbed {
			if err := retryGrab(func() error { return l.disp.GrabPointer(w.Window) }); err == nil {
				w.PointerGrabbed = true
			}
		}
		if !w.KeyboardGrabbed {
			if err := retryGrab(func() error { return l.disp.GrabKeyboard(w.Window) }); err == nil {
				w.KeyboardGrabbed = true
			}
		}
		if w.Handle != nil {
			w.Handle.Send(saver.SafetyRequest(w.safety()))
		}
	}
}

func (l *Locker) handleSaverEvent(ev saver.Event, windows map[uint32]*screenWindow) {
	w, ok := windows[ev.Window]
	if !ok {
		return
	}
	switch ev.Kind {
	case saver.Message:
		switch ev.MessageType {
		case "initialized":
			w.State = Initialized
			if l.cfg.SaverConfig != nil {
				w.Handle.Send(saver.ConfigRequest(l.cfg.SaverConfig(w.SaverName)))
			}
			w.Handle.Send(saver.TargetRequest(w.Window))
			w.Handle.Send(saver.StartRequest())
		case "started":
			w.State = Started
			l.emit(Response{Kind: CancelTimeoutAck, ID: uint64(w.Window)})
			w.stopTicket = false
		case "stopped":
			w.State = Exited
			l.emit(Response{Kind: CancelTimeoutAck, ID: uint64(w.Window)})
			w.stopTicket = false
			l.unmapAndUngrab(w)
			w.Handle.Close()
			l.pool.Remove(w.Window)
			w.Handle = nil
			l.emit(Response{Kind: Stopped})
		}
	case saver.Exit:
		switch {
		case w.State == Exited || w.State == Killed:
			// Already reported, via the "stopped" message or
			// killHungSaver; this is just the process's own exit
			// catching up with bookkeeping we already did.
		case w.Handle != nil && !w.Handle.WasStarted():
			err := apperror.SaverCrash{Window: w.Window, Reason: fmt.Errorf("exit status %d", ev.ExitStatus)}
			l.log.Warn().Err(err).Msg("saver crashed")
			l.emit(Response{Kind: Error, Err: err})
		default:
			l.log.Warn().Uint32("window", w.Window).Int("status", ev.ExitStatus).Msg("saver exited unexpectedly after starting")
		}
		w.State = Exited
		l.pool.Remove(w.Window)
		w.Handle = nil
		if w.stopTicket {
			l.emit(Response{Kind: CancelTimeoutAck, ID: uint64(w.Window)})
			w.stopTicket = false
		}
	}
}

func (l *Locker) handleXEvent(ev XEvent, windows map[uint32]*screenWindow) {
	// Map/ConfigureNotify come from foreign top-levels, not one of our
	// own screen windows, so they never match the windows lookup below;
	// handle them first and refresh observation across every screen.
	if ev.Kind == MapNotify || ev.Kind == ConfigureNotify {
		l.refreshObservation(windows)
		return
	}

	w, ok := windows[ev.Window]
	if !ok {
		return
	}
	switch ev.Kind {
	case KeyPress:
		submitted, didSubmit, reset, deleted, inserted := w.handleKey(ev.Symbol)
		if w.Handle != nil {
			switch {
			case reset:
				w.Handle.Send(saver.PasswordResetRequest())
			case deleted:
				w.Handle.Send(saver.PasswordDeleteRequest())
			case inserted:
				w.Handle.Send(saver.PasswordInsertRequest(ev.Symbol))
			}
		}
		if didSubmit {
			if w.Handle != nil {
				w.Handle.Send(saver.PasswordCheckRequest())
			}
			l.emit(Response{Kind: Password, Password: submitted})
		}
		l.emit(Response{Kind: Activity})
	case ButtonPress, PointerMotion:
		if w.Handle != nil {
			w.Handle.Send(saver.PointerRequest(ev.X, ev.Y))
		}
		l.emit(Response{Kind: Activity})
	case ScreenResize:
		w.Geometry = ScreenGeometry{Width: ev.Width, Height: ev.Height}
		if w.Handle != nil {
			w.Handle.Send(saver.ResizeRequest(ev.Width, ev.Height))
		}
	}
}

// refreshObservation re-applies window observation to every screen,
// per spec.md §4.3: "Observation is applied recursively at start and
// refreshed on every MapNotify/ConfigureNotify."
func (l *Locker) refreshObservation(windows map[uint32]*screenWindow) {
	screens := make(map[int]struct{})
	for _, w := range windows {
		screens[w.Screen] = struct{}{}
	}
	for screen := range screens {
		if err := l.disp.ObserveWindows(screen); err != nil {
			l.log.Warn().Err(err).Int("screen", screen).Msg("window observation refresh failed")
		}
	}
}
