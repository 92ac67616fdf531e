// Package memory implements authcore.UserStore in process memory. It
// backs the load test and the minimal HTTP example.
package memory

import (
	"context"
	"sync"

	"github.com/MrEthical07/authcore"
)

type Store struct {
	mu      sync.RWMutex
	byID    map[string]*authcore.User
	byEmail map[string]string
}

var _ authcore.UserStore = (*Store)(nil)

func New() *Store {
	return &Store{
		byID:    make(map[string]*authcore.User),
		byEmail: make(map[string]string),
	}
}

func (s *Store) Create(_ context.Context, u *authcore.User) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[u.Email]; ok {
		return nil, authcore.ErrEmailTaken
	}
	cp := *u
	s.byID[cp.ID] = &cp
	s.byEmail[cp.Email] = cp.ID

	out := cp
	return &out, nil
}

func (s *Store) FindByID(_ context.Context, id string) (*authcore.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, authcore.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*authcore.User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[email]
	s.mu.RUnlock()
	if !ok {
		return nil, authcore.ErrUserNotFound
	}
	return s.FindByID(ctx, id)
}

func (s *Store) Update(_ context.Context, u *authcore.User) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[u.ID]
	if !ok {
		return nil, authcore.ErrUserNotFound
	}
	if owner, taken := s.byEmail[u.Email]; taken && owner != u.ID {
		return nil, authcore.ErrEmailTaken
	}

	delete(s.byEmail, current.Email)
	cp := *u
	s.byID[cp.ID] = &cp
	s.byEmail[cp.Email] = cp.ID

	out := cp
	return &out, nil
}

// Len returns the number of stored accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
