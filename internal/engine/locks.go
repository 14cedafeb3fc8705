package engine

import "sync"

// userLocks hands out one mutex per user id and forgets it once nobody
// holds or waits for it.
type userLocks struct {
	mu    sync.Mutex
	byKey map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{byKey: map[string]*userLock{}}
}

func (l *userLocks) lock(key string) func() {
	l.mu.Lock()
	ul, ok := l.byKey[key]
	if !ok {
		ul = &userLock{}
		l.byKey[key] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.byKey, key)
		}
		l.mu.Unlock()
	}
}
