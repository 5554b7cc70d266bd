package config

// Saver holds the [saver] configuration section: the stop/start grace
// period, the default throttle flag, the list of savers to pick from,
// and one [saver.NAME] sub-table per saver forwarded to its child
// process verbatim.
type Saver struct {
	// Timeout is the stop/start grace period in seconds before a
	// saver child is killed.
	Timeout uint32
	// Throttle is whether savers start pre-throttled.
	Throttle bool
	// Use lists the saver names to choose from at start.
	Use []string

	names map[string]document
}

func defaultSaver() Saver {
	return Saver{Timeout: 5}
}

func (s *Saver) load(doc document) {
	section, ok := table(doc, "saver")
	if !ok {
		return
	}
	if v, ok := seconds(section, "timeout"); ok {
		s.Timeout = v
	}
	if v, ok := boolean(section, "throttle"); ok {
		s.Throttle = v
	}
	s.Use = strSlice(section, "use")

	names := make(map[string]document)
	for _, name := range s.Use {
		if sub, ok := table(section, name); ok {
			names[name] = sub
		} else {
			names[name] = document{}
		}
	}
	s.names = names
}

// Get returns the [saver.NAME] sub-table forwarded to a saver child,
// or an empty table if it has none.
func (s Saver) Get(name string) map[string]interface{} {
	if s.names == nil {
		return map[string]interface{}{}
	}
	if m, ok := s.names[name]; ok {
		return map[string]interface{}(m)
	}
	return map[string]interface{}{}
}
