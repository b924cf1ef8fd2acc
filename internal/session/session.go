// Package session holds the authenticated user and bearer token of one
// client, and tells interested components when either changes.
package session

import (
	"sync"

	"taskeer/internal/models"
	"taskeer/internal/pubsub"
)

// State is a snapshot of the session.
type State struct {
	Token string
	User  *models.User
}

func (s State) Authenticated() bool {
	return s.Token != "" && s.User != nil
}

func (s State) UserID() int {
	if s.User == nil {
		return 0
	}
	return s.User.ID
}

type Session struct {
	mu      sync.RWMutex
	state   State
	changes *pubsub.Topic[State]
}

func New() *Session {
	return &Session{changes: pubsub.NewTopic[State](8)}
}

// Login stores the token and user and notifies subscribers.
func (s *Session) Login(token string, user models.User) {
	s.set(State{Token: token, User: &user})
}

func (s *Session) Logout() {
	s.set(State{})
}

func (s *Session) set(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.changes.Publish(st)
}

func (s *Session) Current() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Token() string {
	return s.Current().Token
}

func (s *Session) UserID() int {
	return s.Current().UserID()
}

// Subscribe delivers the current state first, then every later change.
func (s *Session) Subscribe() (<-chan State, func()) {
	ch, cancel := s.changes.Subscribe()
	out := make(chan State, 8)
	out <- s.Current()
	go func() {
		defer close(out)
		for st := range ch {
			select {
			case out <- st:
			default:
			}
		}
	}()
	return out, cancel
}
