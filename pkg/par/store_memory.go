package par

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in a mutex-guarded map. It is the default
// backend for development and tests; production deployments use the
// valkey or postgres store.
type MemoryStore struct {
	requests map[string]*Request
	lock     sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[string]*Request),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, req *Request) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.requests[req.RequestURI]; ok {
		return ErrConflict
	}
	cp := *req
	s.requests[req.RequestURI] = &cp
	return nil
}

func (s *MemoryStore) Peek(ctx context.Context, requestURI, clientID string) (*Request, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.lookup(requestURI, clientID, false)
}

func (s *MemoryStore) Consume(ctx context.Context, requestURI, clientID string) (*Request, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.lookup(requestURI, clientID, true)
}

// lookup must be called with the lock held.
func (s *MemoryStore) lookup(requestURI, clientID string, consume bool) (*Request, error) {
	req, ok := s.requests[requestURI]
	if !ok || req.ClientID != clientID {
		return nil, ErrNotFound
	}
	if req.Expired(time.Now()) {
		delete(s.requests, requestURI)
		return nil, ErrNotFound
	}
	if consume {
		delete(s.requests, requestURI)
	}
	cp := *req
	return &cp, nil
}
