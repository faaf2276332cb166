package identity

import "sync"

// Provider supplies the current user id and bearer credential. The cart core
// only consumes these two calls; token issuance lives elsewhere.
type Provider interface {
	// CurrentUserID returns "" for guests.
	CurrentUserID() string
	// Token returns the bearer credential, or "" when unauthenticated.
	Token() string
}

// Static is an in-memory Provider for tests and demos.
type Static struct {
	mu     sync.RWMutex
	userID string
	token  string
}

func NewStatic() *Static {
	return &Static{}
}

func (s *Static) Login(userID, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	s.token = token
}

func (s *Static) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = ""
	s.token = ""
}

func (s *Static) CurrentUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *Static) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}
