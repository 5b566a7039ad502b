package dispatch

import (
	"sync"
	"sync/atomic"

	"github.com/ava-labs/event-publisher/pkg/event"
)

// Listener receives events. OnEvent must not block.
type Listener interface {
	OnEvent(e event.Event) bool
}

type entry struct {
	name string
	l    Listener
}

// Fanout is a copy-on-write listener set. Dispatch reads a snapshot and
// never takes a lock; Add and Remove replace the snapshot.
type Fanout struct {
	mu        sync.Mutex // serializes writers
	listeners atomic.Pointer[[]entry]
}

func NewFanout() *Fanout {
	f := &Fanout{}
	f.listeners.Store(&[]entry{})
	return f
}

// Add registers l under name, replacing any listener with the same name.
func (f *Fanout) Add(name string, l Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur := *f.listeners.Load()
	next := make([]entry, 0, len(cur)+1)
	for _, e := range cur {
		if e.name != name {
			next = append(next, e)
		}
	}
	next = append(next, entry{name: name, l: l})
	f.listeners.Store(&next)
}

// Remove unregisters the listener with name and reports whether one existed.
func (f *Fanout) Remove(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur := *f.listeners.Load()
	next := make([]entry, 0, len(cur))
	for _, e := range cur {
		if e.name != name {
			next = append(next, e)
		}
	}
	if len(next) == len(cur) {
		return false
	}
	f.listeners.Store(&next)
	return true
}

// Len returns the number of registered listeners.
func (f *Fanout) Len() int { return len(*f.listeners.Load()) }

// Dispatch hands e to every listener and returns how many accepted it.
func (f *Fanout) Dispatch(e event.Event) int {
	accepted := 0
	for _, en := range *f.listeners.Load() {
		if en.l.OnEvent(e) {
			accepted++
		}
	}
	return accepted
}
