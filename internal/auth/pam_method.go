package auth

import "github.com/msteinert/pam/v2"

// PAMMethod implements the "pam" auth method: a single round-trip
// through the system PAM stack under the named service.
type PAMMethod struct {
	service string
}

// NewPAMMethod builds a PAMMethod from its [auth.pam] configuration
// sub-table. The service name defaults to "screenruster".
func NewPAMMethod(cfg map[string]interface{}) PAMMethod {
	service := "screenruster"
	if v, ok := cfg["service"].(string); ok && v != "" {
		service = v
	}
	return PAMMethod{service: service}
}

func (PAMMethod) Name() string { return "pam" }

// Check drives one PAM conversation. The callback answers the echo-off
// prompt with the password and the echo-on prompt with the username;
// any other message style gets an empty answer rather than an error,
// since the Authenticator has no UI to relay extra prompts through.
func (m PAMMethod) Check(username, password string) (bool, error) {
	tx, err := pam.StartFunc(m.service, username, func(style pam.Style, _ string) (string, error) {
		switch style {
		case pam.PromptEchoOff:
			return password, nil
		case pam.PromptEchoOn:
			return username, nil
		default:
			return "", nil
		}
	})
	if err != nil {
		return false, err
	}
	if err := tx.Authenticate(0); err != nil {
		return false, nil
	}
	if err := tx.AcctMgmt(0); err != nil {
		return false, nil
	}
	return true, nil
}
