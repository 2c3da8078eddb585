package txn

import (
	"strings"
	"sync"
)

// LockService serializes writers. Each collection has an exclusive
// lock keyed by its case-folded name; collection creation additionally
// serializes through the single header lock. Acquisition blocks with
// no timeout.
type LockService struct {
	mu     sync.Mutex
	header sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewLockService creates an empty lock service.
func NewLockService() *LockService {
	return &LockService{locks: make(map[string]*sync.Mutex)}
}

// LockCollection acquires the exclusive writer lock for the collection
// and returns the release function.
func (s *LockService) LockCollection(name string) func() {
	key := strings.ToLower(name)

	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// LockHeader acquires the exclusive header lock, the single
// serialization point for collection creation, and returns the release
// function.
func (s *LockService) LockHeader() func() {
	s.header.Lock()
	return s.header.Unlock
}
