package session

import (
	"context"
	"sync"
	"time"

	"checklist/internal/storage"
)

// View holds the last snapshot delivered by a live query.
type View[T any] struct {
	mu    sync.RWMutex
	key   int64
	value T
	ready bool
}

// Value returns the last delivered snapshot, or the zero value before the
// first delivery after a list switch.
func (v *View[T]) Value() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Snapshot returns the value together with the list id it was computed for.
// Global views report storage.NoList.
func (v *View[T]) Snapshot() (T, int64, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value, v.key, v.ready
}

func (v *View[T]) set(key int64, value T) {
	v.mu.Lock()
	v.key, v.value, v.ready = key, value, true
	v.mu.Unlock()
}

func (v *View[T]) reset(key int64) {
	var zero T
	v.mu.Lock()
	v.key, v.value, v.ready = key, zero, false
	v.mu.Unlock()
}

// selection is the current list id. Every change closes the channel handed
// out by get, so followers can select on it.
type selection struct {
	mu      sync.Mutex
	id      int64
	changed chan struct{}
}

func newSelection() *selection {
	return &selection{id: storage.NoList, changed: make(chan struct{})}
}

func (s *selection) get() (int64, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.changed
}

func (s *selection) set(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == s.id {
		return
	}
	s.id = id
	close(s.changed)
	s.changed = make(chan struct{})
}

// followList keeps v fed from open(currentList), reopening on every list
// switch. Only the newest selection is followed: the subscription for a
// replaced id is closed before the next one opens.
func followList[T any](c *Controller, v *View[T], open func(context.Context, int64) *storage.Subscription[T]) {
	defer c.wg.Done()
	last := storage.NoList
	for {
		id, switched := c.sel.get()
		if id != last {
			v.reset(id)
			last = id
		}
		if !pump(c, v, id, open(c.ctx, id), switched) {
			return
		}
	}
}

// followGlobal keeps v fed from a query that does not depend on the selection.
func followGlobal[T any](c *Controller, v *View[T], open func(context.Context) *storage.Subscription[T]) {
	defer c.wg.Done()
	for pump(c, v, storage.NoList, open(c.ctx), nil) {
	}
}

// pump copies snapshots into v until the subscription must be reopened (true)
// or the controller closes (false). It reopens after a selection switch, and
// after a failed query once c.retry has passed. The view keeps its last
// snapshot while a failed query waits to be retried.
func pump[T any](c *Controller, v *View[T], key int64, sub *storage.Subscription[T], switched <-chan struct{}) bool {
	defer sub.Close()
	for {
		select {
		case <-c.ctx.Done():
			return false
		case <-switched:
			return true
		case val, ok := <-sub.C:
			if ok {
				v.set(key, val)
				c.notify()
				continue
			}
			if err := sub.Err(); err != nil {
				c.log.Error("view stopped, retrying", "list", key, "retry", c.retry, "err", err)
			}
			t := time.NewTimer(c.retry)
			defer t.Stop()
			select {
			case <-c.ctx.Done():
				return false
			case <-switched:
				return true
			case <-t.C:
				return true
			}
		}
	}
}
