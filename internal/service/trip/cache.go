package trip

import (
	"sync"

	"github.com/google/uuid"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
)

// cache is the in-process view of active trips. It is only written by the
// service after a successful store write, readers subscribe for changes.
type cache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*cacheEntry
	nextID  int
}

type cacheEntry struct {
	trip *models.Trip
	subs map[int]chan *models.Trip
}

func newCache() *cache {
	return &cache{entries: make(map[uuid.UUID]*cacheEntry)}
}

// put stores trip unless a newer version is already cached, then fans it out.
// Terminal trips are evicted and their subscriptions closed.
func (c *cache) put(trip *models.Trip) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[trip.ID]
	if !ok {
		if trip.Status.IsTerminal() {
			return
		}
		e = &cacheEntry{subs: make(map[int]chan *models.Trip)}
		c.entries[trip.ID] = e
	}
	if e.trip != nil && e.trip.Version > trip.Version {
		return
	}
	e.trip = trip.Clone()

	for _, ch := range e.subs {
		offer(ch, e.trip.Clone())
	}

	if trip.Status.IsTerminal() {
		for id, ch := range e.subs {
			close(ch)
			delete(e.subs, id)
		}
		delete(c.entries, trip.ID)
	}
}

func (c *cache) get(id uuid.UUID) (*models.Trip, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok || e.trip == nil {
		return nil, false
	}
	return e.trip.Clone(), true
}

// subscribe returns a channel holding at most the latest trip snapshot.
func (c *cache) subscribe(id uuid.UUID) (<-chan *models.Trip, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		e = &cacheEntry{subs: make(map[int]chan *models.Trip)}
		c.entries[id] = e
	}

	c.nextID++
	subID := c.nextID
	ch := make(chan *models.Trip, 1)
	e.subs[subID] = ch
	if e.trip != nil {
		ch <- e.trip.Clone()
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if cur, ok := c.entries[id]; ok {
				if sub, ok := cur.subs[subID]; ok {
					close(sub)
					delete(cur.subs, subID)
				}
				if cur.trip == nil && len(cur.subs) == 0 {
					delete(c.entries, id)
				}
			}
		})
	}
	return ch, cancel
}

// offer replaces any unread snapshot with v.
func offer(ch chan *models.Trip, v *models.Trip) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
