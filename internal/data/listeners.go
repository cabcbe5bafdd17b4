package data

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Listener is called after a store's state changes.
type Listener func()

// subscription is one registered listener.
type subscription struct {
	id       uint64
	listener Listener
	active   atomic.Bool
}

// listenerSet keeps listeners in subscription order.
type listenerSet struct {
	mu     sync.Mutex
	subs   []*subscription
	nextID uint64
}

// add registers l and returns an idempotent unsubscribe function.
func (ls *listenerSet) add(l Listener) func() {
	ls.mu.Lock()
	ls.nextID++
	sub := &subscription{id: ls.nextID, listener: l}
	sub.active.Store(true)
	ls.subs = append(ls.subs, sub)
	ls.mu.Unlock()

	return func() {
		if !sub.active.CompareAndSwap(true, false) {
			return
		}
		ls.remove(sub.id)
	}
}

func (ls *listenerSet) remove(id uint64) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	ls.subs = slices.DeleteFunc(ls.subs, func(s *subscription) bool {
		return s.id == id
	})
}

// notify calls every listener subscribed before the call began, skipping any
// unsubscribed since. Listeners run outside the lock so they may subscribe,
// unsubscribe or dispatch.
func (ls *listenerSet) notify() {
	ls.mu.Lock()
	snapshot := slices.Clone(ls.subs)
	ls.mu.Unlock()

	for _, sub := range snapshot {
		if sub.active.Load() {
			sub.listener()
		}
	}
}

// clear deactivates every listener.
func (ls *listenerSet) clear() {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	for _, sub := range ls.subs {
		sub.active.Store(false)
	}
	ls.subs = nil
}
