package config

// Timer holds the [timer] configuration section.
type Timer struct {
	// Beat is the number of seconds between heartbeats.
	Beat uint32
	// Timeout is the number of idle seconds before the saver starts.
	Timeout uint32
	// Lock is the number of seconds after start before the screen
	// locks, or nil if locking is disabled.
	Lock *uint32
	// Blank is the number of idle seconds before DPMS powers off the
	// displays, or nil if blanking is disabled.
	Blank *uint32
}

func defaultTimer() Timer {
	return Timer{
		Beat:    30,
		Timeout: 360,
	}
}

func (t *Timer) load(doc document) {
	section, ok := table(doc, "timer")
	if !ok {
		return
	}
	if v, ok := seconds(section, "beat"); ok {
		t.Beat = v
	}
	if v, ok := seconds(section, "timeout"); ok {
		t.Timeout = v
	}
	if v, ok := seconds(section, "lock"); ok {
		t.Lock = &v
	}
	if v, ok := seconds(section, "blank"); ok {
		t.Blank = &v
	}
}
