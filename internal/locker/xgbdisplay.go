package locker

import (
	"fmt"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/dpms"
	"github.com/jezek/xgb/xproto"
)

// saverAtomName self-identifies locker windows so window observation
// (spec.md §4.3 "Window observation") can skip them when OR-ing event
// masks onto foreign top-levels.
const saverAtomName = "SCREENRUSTER_SAVER"

// xgbDisplay is the production display backed by a real X11
// connection. It is never exercised by this package's tests (there is
// no X server in CI), but it is what cmd/screenruster wires up.
type xgbDisplay struct {
	conn    *xgb.Conn
	screens []xproto.ScreenInfo
	atom    xproto.Atom
	events  chan XEvent
	done    chan struct{}
}

// newXGBDisplay connects to the X server named by the locker.display
// configuration key (empty string means $DISPLAY).
func newXGBDisplay(displayName string) (*xgbDisplay, error) {
	var conn *xgb.Conn
	var err error
	if displayName == "" {
		conn, err = xgb.NewConn()
	} else {
		conn, err = xgb.NewConnDisplay(displayName)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to X server: %w", err)
	}
	if err := dpms.Init(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing DPMS extension: %w", err)
	}

	setup := xproto.Setup(conn)
	atomReply, err := xproto.InternAtom(conn, false, uint16(len(saverAtomName)), saverAtomName).Reply()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("interning self-identification atom: %w", err)
	}

	d := &xgbDisplay{
		conn:    conn,
		screens: setup.Roots,
		atom:    atomReply.Atom,
		events:  make(chan XEvent, 64),
		done:    make(chan struct{}),
	}
	go d.readLoop()
	return d, nil
}

func (d *xgbDisplay) Screens() []ScreenGeometry {
	out := make([]ScreenGeometry, len(d.screens))
	for i, s := range d.screens {
		out[i] = ScreenGeometry{Width: s.WidthInPixels, Height: s.HeightInPixels}
	}
	return out
}

// CreateWindow builds the override-redirect, black-background window
// described in spec.md §4.3 "Window creation", tagged with the
// self-identifying CARDINAL property. It sets no cursor attribute, so
// the window shows its parent's cursor; no invisible cursor is made.
func (d *xgbDisplay) CreateWindow(screen int, geom ScreenGeometry) (uint32, error) {
	root := d.screens[screen]

	wid, err := xproto.NewWindowId(d.conn)
	if err != nil {
		return 0, err
	}

	mask := uint32(xproto.CwBackPixel | xproto.CwOverrideRedirect | xproto.CwEventMask)
	values := []uint32{
		root.BlackPixel,
		1,
		uint32(xproto.EventMaskKeyPress | xproto.EventMaskKeyRelease |
			xproto.EventMaskPointerMotion | xproto.EventMaskButtonPress |
			xproto.EventMaskStructureNotify),
	}

	err = xproto.CreateWindowChecked(
		d.conn, root.RootDepth, xproto.Window(wid), root.Root,
		0, 0, geom.Width, geom.Height, 0,
		xproto.WindowClassInputOutput, root.RootVisual,
		mask, values,
	).Check()
	if err != nil {
		return 0, err
	}

	xproto.ChangeProperty(d.conn, xproto.PropModeReplace, xproto.Window(wid),
		d.atom, xproto.AtomCardinal, 32, 1, []byte{1, 0, 0, 0})

	return uint32(wid), nil
}

func (d *xgbDisplay) MapWindow(win uint32) error {
	return xproto.MapWindowChecked(d.conn, xproto.Window(win)).Check()
}

func (d *xgbDisplay) UnmapWindow(win uint32) error {
	return xproto.UnmapWindowChecked(d.conn, xproto.Window(win)).Check()
}

func (d *xgbDisplay) RaiseWindow(win uint32) error {
	return xproto.ConfigureWindowChecked(
		d.conn, xproto.Window(win),
		xproto.ConfigWindowStackMode,
		[]uint32{xproto.StackModeAbove},
	).Check()
}

func (d *xgbDisplay) DestroyWindow(win uint32) error {
	return xproto.DestroyWindowChecked(d.conn, xproto.Window(win)).Check()
}

func (d *xgbDisplay) GrabKeyboard(win uint32) error {
	reply, err := xproto.GrabKeyboard(
		d.conn, true, xproto.Window(win), xproto.TimeCurrentTime,
		xproto.GrabModeAsync, xproto.GrabModeAsync,
	).Reply()
	if err != nil {
		return err
	}
	return mapGrabStatus(win, false, int(reply.Status))
}

func (d *xgbDisplay) GrabPointer(win uint32) error {
	reply, err := xproto.GrabPointer(
		d.conn, true, xproto.Window(win),
		xproto.EventMaskButtonPress|xproto.EventMaskPointerMotion,
		xproto.GrabModeAsync, xproto.GrabModeAsync,
		xproto.Window(win), xproto.CursorNone, xproto.TimeCurrentTime,
	).Reply()
	if err != nil {
		return err
	}
	return mapGrabStatus(win, true, int(reply.Status))
}

func (d *xgbDisplay) UngrabKeyboard() error {
	return xproto.UngrabKeyboardChecked(d.conn, xproto.TimeCurrentTime).Check()
}

func (d *xgbDisplay) UngrabPointer() error {
	return xproto.UngrabPointerChecked(d.conn, xproto.TimeCurrentTime).Check()
}

func (d *xgbDisplay) SetInputFocus(win uint32) error {
	return xproto.SetInputFocusChecked(
		d.conn, xproto.InputFocusPointerRoot, xproto.Window(win), xproto.TimeCurrentTime,
	).Check()
}

func (d *xgbDisplay) DPMS(off bool) error {
	if off {
		return dpms.ForceLevelChecked(d.conn, dpms.DPMSModeOff).Check()
	}
	return dpms.ForceLevelChecked(d.conn, dpms.DPMSModeOn).Check()
}

// observeEventMask is the mask spec.md §4.3 "Window observation" ORs
// onto every foreign top-level so activity anywhere still resets the
// idle clock without stealing input from applications.
const observeEventMask = uint32(xproto.EventMaskKeyPress | xproto.EventMaskKeyRelease |
	xproto.EventMaskPointerMotion | xproto.EventMaskSubstructureNotify)

// ObserveWindows walks screen's window tree from its root, recursively,
// ORing observeEventMask onto every window that doesn't carry the
// self-identifying SCREENRUSTER_SAVER property.
func (d *xgbDisplay) ObserveWindows(screen int) error {
	return d.observeTree(xproto.Window(d.screens[screen].Root))
}

func (d *xgbDisplay) observeTree(win xproto.Window) error {
	if d.isSaverWindow(win) {
		return nil
	}

	xproto.ChangeWindowAttributes(d.conn, win, xproto.CwEventMask, []uint32{observeEventMask})

	tree, err := xproto.QueryTree(d.conn, win).Reply()
	if err != nil {
		return fmt.Errorf("querying window tree of %d: %w", win, err)
	}
	for _, child := range tree.Children {
		if err := d.observeTree(child); err != nil {
			return err
		}
	}
	return nil
}

// isSaverWindow reports whether win carries the SCREENRUSTER_SAVER
// CARDINAL property this daemon tags its own windows with in
// CreateWindow.
func (d *xgbDisplay) isSaverWindow(win xproto.Window) bool {
	reply, err := xproto.GetProperty(d.conn, false, win, d.atom, xproto.AtomCardinal, 0, 1).Reply()
	if err != nil {
		return false
	}
	return reply.ValueLen > 0
}

func (d *xgbDisplay) Events() <-chan XEvent { return d.events }

func (d *xgbDisplay) Close() error {
	close(d.done)
	d.conn.Close()
	return nil
}

// readLoop translates raw X11 events into semantic XEvents, per
// spec.md §4.3's requirement that a dedicated thread drain X I/O so
// the Locker's select loop never blocks on it.
func (d *xgbDisplay) readLoop() {
	defer close(d.events)
	for {
		ev, err := d.conn.WaitForEvent()
		if err != nil {
			select {
			case <-d.done:
				return
			default:
				continue
			}
		}
		if ev == nil {
			return
		}
		switch e := ev.(type) {
		case xproto.KeyPressEvent:
			d.events <- XEvent{Kind: KeyPress, Window: uint32(e.Event), Symbol: keysymName(e.Detail)}
		case xproto.ButtonPressEvent:
			d.events <- XEvent{Kind: ButtonPress, Window: uint32(e.Event), X: e.EventX, Y: e.EventY}
		case xproto.MotionNotifyEvent:
			d.events <- XEvent{Kind: PointerMotion, Window: uint32(e.Event), X: e.EventX, Y: e.EventY}
		case xproto.MapNotifyEvent:
			d.events <- XEvent{Kind: MapNotify, Window: uint32(e.Window)}
		case xproto.ConfigureNotifyEvent:
			d.events <- XEvent{
				Kind: ConfigureNotify, Window: uint32(e.Window),
				Width: e.Width, Height: e.Height,
			}
		}
	}
}

// keysymName maps the subset of keycodes the password state machine
// cares about to their symbolic names; everything else is returned as
// a placeholder made of a NUL byte followed by the decimal keycode,
// not the key's text. A full keysym table is a
// keyboard-layout concern the daemon core doesn't own.
func keysymName(detail xproto.Keycode) string {
	switch detail {
	case 22:
		return "BackSpace"
	case 9:
		return "Escape"
	case 36:
		return "Return"
	default:
		return fmt.Sprintf("\x00%d", detail)
	}
}
