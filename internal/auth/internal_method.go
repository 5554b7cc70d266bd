package auth

import "golang.org/x/crypto/bcrypt"

// InternalMethod implements the "internal" auth method: a fixed
// password configured as a bcrypt hash under [auth.internal] password.
// It exists for kiosks and test rigs that don't want to depend on the
// system credential stack at all.
type InternalMethod struct {
	hash []byte
}

// NewInternalMethod builds an InternalMethod from its [auth.internal]
// configuration sub-table. ok is false if no password is configured,
// in which case the method should be omitted from the chain entirely.
func NewInternalMethod(cfg map[string]interface{}) (InternalMethod, bool) {
	v, ok := cfg["password"]
	if !ok {
		return InternalMethod{}, false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return InternalMethod{}, false
	}
	return InternalMethod{hash: []byte(s)}, true
}

func (InternalMethod) Name() string { return "internal" }

// Check ignores username: the configured password is shared by
// whoever can reach the lock screen, matching the original's
// single-hash fixed-password design.
func (m InternalMethod) Check(_ string, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword(m.hash, []byte(password))
	if err != nil {
		if err == bcrypt.ErrMismatchedHashAndPassword {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
