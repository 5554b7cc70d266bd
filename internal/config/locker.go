package config

// OnSuspend selects what the Coordinator does when the system resumes
// from suspend, per spec.md §6 [locker] on-suspend.
type OnSuspend string

const (
	OnSuspendIgnore        OnSuspend = "ignore"
	OnSuspendUseSystemTime OnSuspend = "use-system-time"
	OnSuspendActivate      OnSuspend = "activate"
	OnSuspendLock          OnSuspend = "lock"
)

// Locker holds the [locker] configuration section.
type Locker struct {
	// Display is the X11 display name to connect to, or empty to use
	// $DISPLAY.
	Display string
	// DPMS enables powering off the displays via DPMS when blanked.
	DPMS bool
	// OnSuspend selects the policy applied when PrepareForSleep(false)
	// (resume) is received.
	OnSuspend OnSuspend
}

func defaultLocker() Locker {
	return Locker{
		DPMS:      true,
		OnSuspend: OnSuspendIgnore,
	}
}

func (l *Locker) load(doc document) {
	section, ok := table(doc, "locker")
	if !ok {
		return
	}
	if v, ok := str(section, "display"); ok {
		l.Display = v
	}
	if v, ok := boolean(section, "dpms"); ok {
		l.DPMS = v
	}
	if v, ok := str(section, "on-suspend"); ok {
		switch OnSuspend(v) {
		case OnSuspendIgnore, OnSuspendUseSystemTime, OnSuspendActivate, OnSuspendLock:
			l.OnSuspend = OnSuspend(v)
		}
	}
}
