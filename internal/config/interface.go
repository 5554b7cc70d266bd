package config

// Interface holds the [interface] configuration section.
type Interface struct {
	// Ignore lists bus operation names this instance refuses with a
	// method error, letting an operator disable remote inhibit or
	// throttle if policy requires it.
	Ignore []string
}

func (i *Interface) load(doc document) {
	section, ok := table(doc, "interface")
	if !ok {
		return
	}
	i.Ignore = strSlice(section, "ignore")
}

// Ignores reports whether the named operation has been disabled.
func (i Interface) Ignores(operation string) bool {
	for _, name := range i.Ignore {
		if name == operation {
			return true
		}
	}
	return false
}
