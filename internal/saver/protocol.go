// Package saver supervises one child process per locker window,
// translating typed requests into a JSON-line wire protocol over the
// child's stdin/stdout and surfacing its lifecycle back as Events. See
// spec.md §4.4.
//
// The wire format itself is out of scope for the daemon core (spec.md
// §1 "out of scope: ... the saver JSON wire format at byte level"), so
// this package only commits to "one JSON object per line" and the
// type tag; it uses encoding/json because nothing in the example
// corpus supplies a JSON-line framing library and the format is a
// private implementation detail between this daemon and its own saver
// children, not a public wire contract worth a third-party codec.
package saver

import "encoding/json"

// Request is one JSON-line message sent to a saver child. Type
// selects the shape; Fields carries whatever extra keys that shape
// needs (e.g. "width"/"height" for a resize, "value" for throttle).
type Request struct {
	Type   string
	Fields map[string]interface{}
}

// MarshalJSON flattens Fields alongside "type" into one JSON object,
// matching the wire shape `{type: "...", ...}`.
func (r Request) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(r.Fields)+1)
	for k, v := range r.Fields {
		m[k] = v
	}
	m["type"] = r.Type
	return json.Marshal(m)
}

func configRequest(fields map[string]interface{}) Request {
	return Request{Type: "config", Fields: fields}
}

func TargetRequest(window uint32) Request {
	return Request{Type: "target", Fields: map[string]interface{}{"window": window}}
}

func ThrottleRequest(on bool) Request {
	return Request{Type: "throttle", Fields: map[string]interface{}{"value": on}}
}

func BlankRequest(on bool) Request {
	return Request{Type: "blank", Fields: map[string]interface{}{"value": on}}
}

func ResizeRequest(width, height uint16) Request {
	return Request{Type: "resize", Fields: map[string]interface{}{"width": width, "height": height}}
}

func PointerRequest(x, y int16) Request {
	return Request{Type: "pointer", Fields: map[string]interface{}{"x": x, "y": y}}
}

func PasswordInsertRequest(s string) Request {
	return Request{Type: "password", Fields: map[string]interface{}{"action": "insert", "value": s}}
}

func PasswordDeleteRequest() Request {
	return Request{Type: "password", Fields: map[string]interface{}{"action": "delete"}}
}

func PasswordResetRequest() Request {
	return Request{Type: "password", Fields: map[string]interface{}{"action": "reset"}}
}

func PasswordCheckRequest() Request {
	return Request{Type: "password", Fields: map[string]interface{}{"action": "check"}}
}

func PasswordSuccessRequest() Request {
	return Request{Type: "password", Fields: map[string]interface{}{"action": "success"}}
}

func PasswordFailureRequest() Request {
	return Request{Type: "password", Fields: map[string]interface{}{"action": "failure"}}
}

func SafetyRequest(level string) Request {
	return Request{Type: "safety", Fields: map[string]interface{}{"level": level}}
}

func ConfigRequest(params map[string]interface{}) Request {
	return configRequest(params)
}

func StartRequest() Request { return Request{Type: "start"} }
func LockRequest() Request  { return Request{Type: "lock"} }
func StopRequest() Request  { return Request{Type: "stop"} }
