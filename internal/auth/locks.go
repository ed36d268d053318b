// internal/auth/locks.go
package auth

import "sync"

// keyLocks hands out one mutex per key so that writers for different users
// never contend with each other.
type keyLocks struct {
	mu    sync.RWMutex
	locks map[string]*sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*sync.Mutex)}
}

// get returns the mutex for key, creating it on first use.
func (k *keyLocks) get(key string) *sync.Mutex {
	k.mu.RLock()
	if l, ok := k.locks[key]; ok {
		k.mu.RUnlock()
		return l
	}
	k.mu.RUnlock()

	k.mu.Lock()
	defer k.mu.Unlock()

	// double check under the write lock
	if l, ok := k.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	k.locks[key] = l
	return l
}

// with runs fn while holding the mutex for key.
func (k *keyLocks) with(key string, fn func() error) error {
	l := k.get(key)
	l.Lock()
	defer l.Unlock()
	return fn()
}
