// Package auth holds the broadcast credential and the OAuth2 flow that
// grants and revokes it.
package auth

import (
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/oauth2"
)

// ErrNoCredential is returned by Token when nothing has been granted.
var ErrNoCredential = errors.New("no credential granted")

// Authorizer is the read-only view the pipeline and publish gate use.
type Authorizer interface {
	IsAuthorized() bool
}

// State is the process-wide authorization flag plus the granted token
// source. Only Grant and Revoke change the flag, except that a credential
// the provider will never renew revokes itself on use.
type State struct {
	authorized atomic.Bool

	mu   sync.Mutex
	ts   oauth2.TokenSource
	last *oauth2.Token
}

func NewState() *State {
	return &State{}
}

// NewPreauthorized returns a State that is authorized without a token, for
// sinks that carry their own credentials.
func NewPreauthorized() *State {
	s := NewState()
	s.authorized.Store(true)
	return s
}

func (s *State) IsAuthorized() bool { return s.authorized.Load() }

// Grant installs ts, usually a refreshing source from oauth2.Config. tok is
// the token it was built from.
func (s *State) Grant(tok *oauth2.Token, ts oauth2.TokenSource) {
	s.mu.Lock()
	s.ts, s.last = ts, tok
	s.mu.Unlock()
	s.authorized.Store(true)
}

// Revoke clears the credential and returns the last token seen, or nil.
func (s *State) Revoke() *oauth2.Token {
	s.mu.Lock()
	t := s.last
	s.ts, s.last = nil, nil
	s.mu.Unlock()
	s.authorized.Store(false)
	return t
}

// Token implements oauth2.TokenSource. Refresh is left to the installed
// source. A refresh the provider rejects, or an expired token with no
// refresh token, revokes the state; other failures are returned as is.
func (s *State) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authorized.Load() || s.ts == nil {
		return nil, ErrNoCredential
	}
	tok, err := s.ts.Token()
	if err != nil {
		if s.permanent(err) {
			s.ts, s.last = nil, nil
			s.authorized.Store(false)
		}
		return nil, err
	}
	s.last = tok
	return tok, nil
}

func (s *State) permanent(err error) bool {
	if s.last != nil && s.last.RefreshToken == "" && !s.last.Valid() {
		return true
	}
	var re *oauth2.RetrieveError
	return errors.As(err, &re) && re.ErrorCode == "invalid_grant"
}
