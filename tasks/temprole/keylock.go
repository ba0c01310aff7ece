package temprole

import (
	"role-keeper/model"
	"sync"
)

// keyLocks hands out one mutex per grant key. Entries are reference
// counted and dropped when the last holder unlocks, so the map only holds
// keys that are being worked on.
type keyLocks struct {
	mu    sync.Mutex
	locks map[model.GrantKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[model.GrantKey]*keyLock)}
}

// lock blocks until key is free and returns the matching unlock.
func (l *keyLocks) lock(key model.GrantKey) func() {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

func (l *keyLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
