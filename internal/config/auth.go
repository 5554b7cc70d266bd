package config

// Auth holds the [auth.*] configuration sections: one sub-table per
// authentication method, keyed by method name (e.g. "internal", "pam").
type Auth struct {
	methods map[string]document
}

func (a *Auth) load(doc document) {
	section, ok := table(doc, "auth")
	if !ok {
		a.methods = nil
		return
	}
	methods := make(map[string]document)
	for key, v := range section {
		if m, ok := v.(map[string]interface{}); ok {
			methods[key] = document(m)
		}
	}
	a.methods = methods
}

// Get returns the configuration sub-table for the named auth method,
// or an empty table if it has none.
func (a Auth) Get(name string) map[string]interface{} {
	if a.methods == nil {
		return map[string]interface{}{}
	}
	if m, ok := a.methods[name]; ok {
		return map[string]interface{}(m)
	}
	return map[string]interface{}{}
}
