package locker

import "github.com/screenruster/screenruster/internal/saver"

// saverState is the per-saver state machine from spec.md §4.3
// "State machine per saver (per window)".
type saverState int

const (
	Spawned saverState = iota
	Initialized
	Started
	Running
	Stopping
	Exited
	Killed
)

// passwordBufferCap is spec.md §4.3's 256-byte cap on the password
// buffer; excess characters are dropped without feedback.
const passwordBufferCap = 256

// screenWindow is one root screen's locker window: its grab state,
// saver handle and state, and the password-entry buffer. It is
// exclusively owned by the Locker goroutine — no locking needed.
type screenWindow struct {
	Window   uint32
	Screen   int
	Geometry ScreenGeometry

	KeyboardGrabbed bool
	PointerGrabbed  bool

	SaverName  string
	Handle     *saver.Handle
	State      saverState
	stopTicket bool // true while a stop-timeout ticket is outstanding

	Password []byte
	Checking bool
}

func newScreenWindow(screen int, win uint32, geom ScreenGeometry) *screenWindow {
	return &screenWindow{Window: win, Screen: screen, Geometry: geom}
}

func (w *screenWindow) safety() string {
	return safetyLevel(w.KeyboardGrabbed, w.PointerGrabbed)
}

// handleKey applies one key symbol to the password state machine and
// reports which responses the Locker should emit. didSubmit is
// true only when Return was pressed (a password submission).
func (w *screenWindow) handleKey(symbol string) (submitted string, didSubmit, reset, deleted, inserted bool) {
	if w.Checking {
		return "", false, false, false, false
	}
	switch symbol {
	case "BackSpace":
		if len(w.Password) > 0 {
			w.Password = w.Password[:len(w.Password)-1]
		}
		return "", false, false, true, false
	case "Escape":
		w.Password = w.Password[:0]
		return "", false, true, false, false
	case "Return":
		s := string(w.Password)
		w.Password = w.Password[:0]
		w.Checking = true
		return s, true, false, false, false
	default:
		if len(w.Password)+len(symbol) > passwordBufferCap {
			return "", false, false, false, false
		}
		w.Password = append(w.Password, symbol...)
		return "", false, false, false, true
	}
}

// resetForNewSession clears password/checking state and marks no
// saver assigned, for reuse when a fresh lock session starts.
func (w *screenWindow) resetForNewSession() {
	w.Password = w.Password[:0]
	w.Checking = false
	w.State = Spawned
	w.Handle = nil
	w.stopTicket = false
}
