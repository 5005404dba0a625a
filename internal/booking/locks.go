package booking

import "sync"

// workerLocks hands out one mutex per worker. Entries are dropped once no
// goroutine holds or waits on them.
type workerLocks struct {
	mu    sync.Mutex
	locks map[int64]*workerLock
}

type workerLock struct {
	mu   sync.Mutex
	refs int
}

func newWorkerLocks() *workerLocks {
	return &workerLocks{locks: make(map[int64]*workerLock)}
}

// Lock blocks until the worker's lock is held and returns its release func.
func (l *workerLocks) Lock(workerID int64) func() {
	l.mu.Lock()
	wl, ok := l.locks[workerID]
	if !ok {
		wl = &workerLock{}
		l.locks[workerID] = wl
	}
	wl.refs++
	l.mu.Unlock()

	wl.mu.Lock()

	return func() {
		wl.mu.Unlock()

		l.mu.Lock()
		wl.refs--
		if wl.refs == 0 {
			delete(l.locks, workerID)
		}
		l.mu.Unlock()
	}
}

func (l *workerLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
