package clip

import "sync"

// clipLocks serializes read-modify-write cycles per clip id. Two segments of
// the same broadcast processed close together must not interleave their
// aggregate updates; segments of different broadcasts proceed in parallel.
type clipLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newClipLocks() *clipLocks {
	return &clipLocks{locks: make(map[string]*lockEntry)}
}

// acquire blocks until the caller holds the lock for id and returns the
// matching release func. Entries are reference counted so the table does not
// grow with the number of sessions ever seen.
func (c *clipLocks) acquire(id string) func() {
	c.mu.Lock()
	e, ok := c.locks[id]
	if !ok {
		e = &lockEntry{}
		c.locks[id] = e
	}
	e.refs++
	c.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		c.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(c.locks, id)
		}
		c.mu.Unlock()
	}
}
