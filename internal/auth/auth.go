// Package auth implements the Authenticator peer: a single serial
// worker that checks a candidate password against one or more
// configured methods and reports Success or Failure to the
// Coordinator. See spec.md §4.5.
package auth

import (
	"os/user"
	"sort"

	"github.com/rs/zerolog"

	"github.com/screenruster/screenruster/internal/apperror"
	"github.com/screenruster/screenruster/internal/config"
)

// Method checks a password against one credential backend.
type Method interface {
	Name() string
	Check(username, password string) (bool, error)
}

// ResponseKind distinguishes Success from Failure.
type ResponseKind int

const (
	Success ResponseKind = iota
	Failure
)

// Response is the Authenticator's reply to an Authenticate request.
type Response struct {
	Kind ResponseKind
}

type request struct {
	password string
}

// Authenticator is the serial credential-check worker. All of its
// state (the current method list and username) is fixed at
// construction; Authenticate requests are drained one at a time by a single
// goroutine so that non-reentrant conversations (PAM in particular)
// never overlap.
type Authenticator struct {
	requests  chan request
	responses chan Response
	log       zerolog.Logger
}

// methodOrder fixes the trial order for configured methods: "internal"
// first (it's the cheapest check and the one most likely to be used
// for kiosk-style fixed passwords), then "pam", then anything else in
// alphabetical order for determinism.
func methodOrder(names []string) []string {
	priority := map[string]int{"internal": 0, "pam": 1}
	sort.SliceStable(names, func(i, j int) bool {
		pi, oki := priority[names[i]]
		pj, okj := priority[names[j]]
		switch {
		case oki && okj:
			return pi < pj
		case oki:
			return true
		case okj:
			return false
		default:
			return names[i] < names[j]
		}
	})
	return names
}

// New resolves the current process user and builds the method chain
// from cfg. Per spec.md §4.5, failure to resolve the current user
// fails daemon initialization.
func New(cfg config.Auth, methods []Method, log zerolog.Logger) (*Authenticator, error) {
	if _, err := user.Current(); err != nil {
		return nil, apperror.AuthUnknownUser{}
	}

	names := make([]string, 0, len(methods))
	byName := make(map[string]Method, len(methods))
	for _, m := range methods {
		names = append(names, m.Name())
		byName[m.Name()] = m
	}
	ordered := make([]Method, 0, len(methods))
	for _, name := range methodOrder(names) {
		ordered = append(ordered, byName[name])
	}

	a := &Authenticator{
		requests:  make(chan request, 4),
		responses: make(chan Response, 4),
		log:       log.With().Str("component", "auth").Logger(),
	}
	go a.run(ordered)
	return a, nil
}

// Responses returns the channel the Coordinator selects on.
func (a *Authenticator) Responses() <-chan Response { return a.responses }

// Authenticate queues a password for checking. The result arrives
// later on Responses.
func (a *Authenticator) Authenticate(password string) {
	a.requests <- request{password: password}
}

func (a *Authenticator) run(methods []Method) {
	defer close(a.responses)

	u, err := user.Current()
	if err != nil {
		// Unreachable in practice: New already validated this, but the
		// worker re-resolves defensively since the username is what
		// gets passed to every Method.Check call.
		return
	}
	username := u.Username

	for req := range a.requests {
		result := a.check(username, req.password, methods)
		a.responses <- result
	}
}

func (a *Authenticator) check(username, password string, methods []Method) Response {
	for _, m := range methods {
		ok, err := m.Check(username, password)
		if err != nil {
			a.log.Warn().Err(apperror.AuthMethodError{Method: m.Name(), Reason: err}).
				Str("method", m.Name()).Msg("auth method errored, treating as failure")
			continue
		}
		if ok {
			return Response{Kind: Success}
		}
	}
	return Response{Kind: Failure}
}
