package locker

import (
	"time"

	"github.com/screenruster/screenruster/internal/apperror"
)

// grabRetries and grabPause implement spec.md §4.3's grab discipline:
// "Each grab retries up to 500 times with 1 ms pauses (buggy X
// clients routinely hold grabs transiently)."
const (
	grabRetries = 500
	grabPause   = time.Millisecond
)

// retryGrab calls attempt up to grabRetries times, pausing grabPause
// between tries, and returns the last error if every attempt failed.
// attempt should return nil on GrabStatusSuccess and a typed
// apperror.GrabFailed otherwise.
func retryGrab(attempt func() error) error {
	var err error
	for i := 0; i < grabRetries; i++ {
		if err = attempt(); err == nil {
			return nil
		}
		time.Sleep(grabPause)
	}
	return err
}

// grabBoth attempts the keyboard grab first, then the pointer grab,
// per spec.md §4.3 step 1-4: keyboard failure is fatal for the
// window; pointer failure is logged and left for sanitize to retry.
func grabBoth(d display, win uint32) (keyboardOK, pointerOK bool, fatal error) {
	if err := retryGrab(func() error { return d.GrabKeyboard(win) }); err != nil {
		return false, false, err
	}
	keyboardOK = true

	if err := retryGrab(func() error { return d.GrabPointer(win) }); err != nil {
		return true, false, nil
	}
	return true, true, nil
}

// safetyLevel computes the password-UI safety level from the current
// grab state, per spec.md §4.3 "Safety level".
func safetyLevel(keyboardGrabbed, pointerGrabbed bool) string {
	switch {
	case keyboardGrabbed && pointerGrabbed:
		return "High"
	case keyboardGrabbed:
		return "Medium"
	case pointerGrabbed:
		return "Low"
	default:
		return "Low"
	}
}

// mapGrabStatus translates an X11 grab status code into the typed
// error spec.md §4.3 item 5 calls for. Called by display
// implementations, not by the retry loop itself.
func mapGrabStatus(win uint32, pointer bool, status int) error {
	switch status {
	case grabStatusSuccess:
		return nil
	case grabStatusAlreadyGrabbed:
		return apperror.GrabFailed{Window: win, Pointer: pointer, Kind: apperror.GrabConflict}
	case grabStatusNotViewable:
		return apperror.GrabFailed{Window: win, Pointer: pointer, Kind: apperror.GrabUnmapped}
	case grabStatusFrozen:
		return apperror.GrabFailed{Window: win, Pointer: pointer, Kind: apperror.GrabFrozen}
	default:
		return apperror.GrabFailed{Window: win, Pointer: pointer, Kind: apperror.GrabConflict}
	}
}

// Mirrors xproto's GrabStatus* constants without importing xproto
// here, so this file (and its tests) stay X11-connection-free.
const (
	grabStatusSuccess        = 0
	grabStatusAlreadyGrabbed = 1
	grabStatusInvalidTime    = 2
	grabStatusNotViewable    = 3
	grabStatusFrozen         = 4
)
