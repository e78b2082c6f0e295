// Package memstore is an in-process anonymous chat store for single-node
// deployments and local development.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/suPer8Hu/lexchat/internal/anon"
)

var _ anon.Store = (*Store)(nil)

type Store struct {
	mu  sync.Mutex
	c   *cache.Cache
	ttl time.Duration
}

func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{c: cache.New(ttl, 10*time.Minute), ttl: ttl}
}

func (s *Store) Count(_ context.Context, session string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked(session), nil
}

func (s *Store) countLocked(session string) int {
	if v, ok := s.c.Get(anon.CountKey(session)); ok {
		return v.(int)
	}
	return 0
}

func (s *Store) Increment(_ context.Context, session string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.countLocked(session) + 1
	s.c.Set(anon.CountKey(session), n, s.ttl)
	return n, nil
}

func (s *Store) IncrementIfBelow(_ context.Context, session string, ceiling int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.countLocked(session)
	if n >= ceiling {
		return n, false, nil
	}
	n++
	s.c.Set(anon.CountKey(session), n, s.ttl)
	return n, true, nil
}

func (s *Store) Messages(_ context.Context, session, chatID string) ([]anon.Message, error) {
	v, ok := s.c.Get(anon.ChatKey(session, chatID))
	if !ok {
		return nil, nil
	}
	stored := v.([]anon.Message)
	return append([]anon.Message(nil), stored...), nil
}

func (s *Store) SaveMessages(_ context.Context, session, chatID string, msgs []anon.Message) error {
	s.c.Set(anon.ChatKey(session, chatID), append([]anon.Message(nil), msgs...), s.ttl)
	return nil
}

func (s *Store) ClearChats(_ context.Context, session string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := anon.ChatKeyPrefix(session)
	for k := range s.c.Items() {
		if strings.HasPrefix(k, prefix) {
			s.c.Delete(k)
		}
	}
	return nil
}
