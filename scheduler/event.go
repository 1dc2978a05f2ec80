package scheduler

import (
	"sync"
	"sync/atomic"
)

// Event is a timestamped payload waiting in a Scheduler.
//
// While pending, an Event belongs to the Scheduler. After GetNextEvent or
// WaitNextEvent returns it, it belongs to the caller until it is handed back
// with AddEventToPool. Timestamp must not change while the event is pending.
type Event struct {
	Timestamp int64
	Data      []byte

	id   int32
	next int32
}

const (
	chunkBits = 6
	chunkSize = 1 << chunkBits
	chunkMask = chunkSize - 1
	maxChunks = 1024

	// MaxEvents is the number of event slots an arena can hand out.
	MaxEvents = maxChunks * chunkSize

	noEvent int32 = -1
)

type chunk [chunkSize]Event

// arena owns every Event a Scheduler ever uses. Slots are referenced by index
// and never move, so an index handed between goroutines stays valid.
// Chunks are published atomically; alloc is producer-only.
//
// Slots that a full free pool could not take are parked with release and
// handed out again by alloc before the arena grows.
type arena struct {
	chunks [maxChunks]atomic.Pointer[chunk]
	size   int32

	released atomic.Int32
	mu       sync.Mutex
	spare    []int32
}

func (a *arena) release(id int32) {
	a.mu.Lock()
	a.spare = append(a.spare, id)
	a.mu.Unlock()
	a.released.Add(1)
}

func (a *arena) reclaim() *Event {
	if a.released.Load() == 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.spare)
	if n == 0 {
		return nil
	}
	id := a.spare[n-1]
	a.spare = a.spare[:n-1]
	a.released.Add(-1)
	return a.get(id)
}

func (a *arena) alloc() *Event {
	if ev := a.reclaim(); ev != nil {
		return ev
	}
	if a.size >= MaxEvents {
		return nil
	}
	ci := a.size >> chunkBits
	c := a.chunks[ci].Load()
	if c == nil {
		c = new(chunk)
		for i := range c {
			c[i].id = ci<<chunkBits | int32(i)
			c[i].next = noEvent
		}
		a.chunks[ci].Store(c)
	}
	ev := &c[a.size&chunkMask]
	a.size++
	return ev
}

func (a *arena) get(id int32) *Event {
	return &a.chunks[id>>chunkBits].Load()[id&chunkMask]
}
