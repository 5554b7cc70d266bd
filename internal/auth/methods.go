package auth

import "github.com/screenruster/screenruster/internal/config"

// BuildMethods turns an [auth.*] configuration section into the
// Method chain passed to New. "internal" is only included if a
// password hash is actually configured; "pam" is always included,
// since a missing [auth.pam] table just means default settings.
func BuildMethods(cfg config.Auth) []Method {
	var methods []Method
	if m, ok := NewInternalMethod(cfg.Get("internal")); ok {
		methods = append(methods, m)
	}
	methods = append(methods, NewPAMMethod(cfg.Get("pam")))
	return methods
}
