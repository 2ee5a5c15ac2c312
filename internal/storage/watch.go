package storage

import (
	"context"
	"sync"
)

type table uint8

const (
	tableLists table = 1 << iota
	tableItems
	tableSettings
)

// Subscription is a live query. C receives the current result as soon as the
// subscription starts and a fresh result after every committed mutation of a
// table the query reads. C buffers a single snapshot: a newer result replaces
// one the reader has not taken yet. C is closed after Close, after the parent
// context ends, or after a query fails (see Err).
type Subscription[T any] struct {
	C <-chan T

	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Close stops the subscription and waits for its goroutine to exit.
func (s *Subscription[T]) Close() {
	s.cancel()
	<-s.done
}

// Err returns the query failure that ended the subscription, if any.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription[T]) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

type watcher struct {
	tables table
	wake   chan struct{}
}

// hub fans change notifications out to watchers. Wakes are coalesced: a
// watcher that has not re-queried yet keeps a single pending wake.
type hub struct {
	mu       sync.Mutex
	watchers map[*watcher]struct{}
}

func newHub() *hub {
	return &hub{watchers: make(map[*watcher]struct{})}
}

func (h *hub) add(tables table) *watcher {
	w := &watcher{tables: tables, wake: make(chan struct{}, 1)}
	h.mu.Lock()
	h.watchers[w] = struct{}{}
	h.mu.Unlock()
	return w
}

func (h *hub) remove(w *watcher) {
	h.mu.Lock()
	delete(h.watchers, w)
	h.mu.Unlock()
}

func (h *hub) notify(tables table) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for w := range h.watchers {
		if w.tables&tables == 0 {
			continue
		}
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

func (h *hub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers)
}

func watch[T any](ctx context.Context, s *Store, op string, tables table, query func(context.Context) (T, error)) *Subscription[T] {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan T, 1)
	sub := &Subscription[T]{C: out, cancel: cancel, done: make(chan struct{})}

	// Registered before the first query so no commit between the two is lost.
	w := s.hub.add(tables)
	go func() {
		defer close(sub.done)
		defer close(out)
		defer s.hub.remove(w)
		for {
			v, err := query(ctx)
			if err != nil {
				if ctx.Err() == nil {
					sub.setErr(wrap(op, err))
					s.log.Error("live query failed", "op", op, "err", err)
				}
				return
			}
			replace(out, v)
			select {
			case <-ctx.Done():
				return
			case <-w.wake:
			}
		}
	}()
	return sub
}

// replace puts v on out, discarding a snapshot the reader has not taken.
// Only the subscription goroutine sends on out.
func replace[T any](out chan T, v T) {
	for {
		select {
		case out <- v:
			return
		default:
		}
		select {
		case <-out:
		default:
		}
	}
}
