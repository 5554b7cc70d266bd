package locker

// ScreenGeometry is a root screen's pixel dimensions.
type ScreenGeometry struct {
	Width  uint16
	Height uint16
}

// XEventKind identifies the shape of an XEvent.
type XEventKind int

const (
	KeyPress XEventKind = iota
	ButtonPress
	PointerMotion
	MapNotify
	ConfigureNotify
	ScreenResize
)

// XEvent is the semantic translation of a raw X11 event, produced by
// a dedicated reader goroutine so the Locker's select loop never
// blocks on X I/O. Symbol carries "BackSpace", "Escape", "Return", or
// the literal UTF-8 text of any other key for KeyPress events.
type XEvent struct {
	Kind   XEventKind
	Window uint32
	Symbol string
	X, Y   int16
	Width  uint16
	Height uint16
}

// display abstracts the X11 operations the Locker needs. The
// production implementation (xgbDisplay) wraps github.com/jezek/xgb;
// tests use a fake so the grab-retry/safety-level/password state
// machine is verifiable without a running X server.
type display interface {
	Screens() []ScreenGeometry
	CreateWindow(screen int, geom ScreenGeometry) (uint32, error)
	MapWindow(win uint32) error
	UnmapWindow(win uint32) error
	RaiseWindow(win uint32) error
	DestroyWindow(win uint32) error
	GrabKeyboard(win uint32) error
	GrabPointer(win uint32) error
	UngrabKeyboard() error
	UngrabPointer() error
	SetInputFocus(win uint32) error
	DPMS(off bool) error
	// ObserveWindows ORs KeyPress|KeyRelease|PointerMotion|
	// SubstructureNotify onto every existing top-level on screen,
	// recursively, skipping any window bearing the self-identifying
	// SCREENRUSTER_SAVER property. Called at start and again whenever
	// a MapNotify/ConfigureNotify is observed.
	ObserveWindows(screen int) error
	Events() <-chan XEvent
	Close() error
}
