package status

import "sync"

// lineLocks hands out one mutex per line ID. Entries are never removed; the
// set of lines is small and fixed by configuration.
type lineLocks struct {
	locks map[string]*sync.Mutex
	mu    sync.RWMutex
}

func newLineLocks() *lineLocks {
	return &lineLocks{locks: make(map[string]*sync.Mutex)}
}

// lock blocks until the caller owns lineID and returns the release func.
func (l *lineLocks) lock(lineID string) func() {
	l.mu.RLock()
	m, ok := l.locks[lineID]
	l.mu.RUnlock()

	if !ok {
		l.mu.Lock()
		if m, ok = l.locks[lineID]; !ok {
			m = &sync.Mutex{}
			l.locks[lineID] = m
		}
		l.mu.Unlock()
	}

	m.Lock()
	return m.Unlock
}
