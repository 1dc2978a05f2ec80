// Package scheduler buffers timestamped events until they are due.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MaxWait bounds a single sleep inside WaitNextEvent, and is also how long it
// sleeps when nothing is pending.
const MaxWait = time.Second

// DefaultMaxPoolSize is the free pool cap used when Options leaves it zero.
const DefaultMaxPoolSize = 512

// ErrFull is returned by Schedule when every event slot is in use.
var ErrFull = errors.New("scheduler: no free event slots")

type Options struct {
	// MaxPoolSize caps how many recycled events the lock-free pool keeps.
	// Events returned beyond the cap are parked in the arena and reused
	// before it grows.
	MaxPoolSize int

	// Clock is the time base of event timestamps. Defaults to MonotonicClock.
	Clock Clock
}

// Scheduler lets you register events that should be handled in the future.
//
// Events with equal timestamps come out in the order they were added.
//
// Add, GetNextEvent and WaitNextEvent share one lock and may be called from
// different goroutines. The recycling side is lock free and split by role:
// NewEvent and RemoveEventFromPool belong to the single producer goroutine,
// AddEventToPool and WaitNextEvent to the single consumer goroutine.
// Callers with more than one producer must serialise them.
type Scheduler struct {
	mu      sync.Mutex
	buckets map[int64]*bucket
	times   timeHeap
	spare   []*bucket
	pending int
	wake    chan struct{}

	arena arena
	pool  *freePool
	clock Clock
	timer *time.Timer
}

func New(options Options) *Scheduler {
	if options.MaxPoolSize <= 0 {
		options.MaxPoolSize = DefaultMaxPoolSize
	}
	if options.Clock == nil {
		options.Clock = MonotonicClock
	}
	return &Scheduler{
		buckets: make(map[int64]*bucket, 64),
		times:   make(timeHeap, 0, 64),
		wake:    make(chan struct{}, 1),
		pool:    newFreePool(options.MaxPoolSize),
		clock:   options.Clock,
	}
}

// Clock returns the time base the scheduler compares timestamps against.
func (s *Scheduler) Clock() Clock {
	return s.clock
}

// Add queues ev by its timestamp.
func (s *Scheduler) Add(ev *Event) {
	s.mu.Lock()
	wakeup := false
	b, ok := s.buckets[ev.Timestamp]
	if !ok {
		wakeup = len(s.times) == 0 || ev.Timestamp < s.times.min()
		b = s.newBucketLocked(ev.Timestamp)
		s.buckets[ev.Timestamp] = b
		s.times.push(ev.Timestamp)
	}
	ev.next = noEvent
	if b.head == noEvent {
		b.head = ev.id
	} else {
		s.arena.get(b.tail).next = ev.id
	}
	b.tail = ev.id
	b.added++
	s.pending++
	s.mu.Unlock()

	if wakeup {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// GetNextEvent returns the oldest event of the earliest timestamp if that
// timestamp is not after now. It returns nil when nothing is due.
func (s *Scheduler) GetNextEvent(now int64) *Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.times) == 0 {
		return nil
	}
	t := s.times.min()
	if t > now {
		return nil
	}
	return s.removeNextLocked(t)
}

// WaitNextEvent blocks until an event is due and returns it.
// It returns ctx.Err() if ctx is cancelled first.
func (s *Scheduler) WaitNextEvent(ctx context.Context) (*Event, error) {
	for {
		s.mu.Lock()
		wait := MaxWait
		if len(s.times) > 0 {
			t := s.times.min()
			now := s.clock.Now()
			if t <= now {
				ev := s.removeNextLocked(t)
				s.mu.Unlock()
				return ev, nil
			}
			// round up so we never wake just before the deadline
			if delta := time.Duration(t - now); delta < MaxWait {
				wait = (delta/time.Millisecond + 1) * time.Millisecond
			}
		}
		s.mu.Unlock()

		if s.timer == nil {
			s.timer = time.NewTimer(wait)
		} else {
			s.timer.Reset(wait)
		}
		select {
		case <-ctx.Done():
			s.timer.Stop()
			return nil, ctx.Err()
		case <-s.wake:
			s.timer.Stop()
		case <-s.timer.C:
		}
	}
}

// Len returns the number of pending events.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// AddEventToPool hands a consumed event back for reuse.
// When the pool is at its maximum size the event's slot goes back to the
// arena instead.
func (s *Scheduler) AddEventToPool(ev *Event) {
	if !s.pool.push(ev.id) {
		s.arena.release(ev.id)
	}
}

// RemoveEventFromPool returns a recycled event, or nil if the pool holds
// fewer than two.
func (s *Scheduler) RemoveEventFromPool() *Event {
	id, ok := s.pool.pop()
	if !ok {
		return nil
	}
	return s.arena.get(id)
}

// NewEvent returns an event holding a copy of data, recycled if possible.
// It returns nil when the arena is exhausted.
func (s *Scheduler) NewEvent(timestamp int64, data []byte) *Event {
	ev := s.RemoveEventFromPool()
	if ev == nil {
		ev = s.arena.alloc()
		if ev == nil {
			return nil
		}
	}
	ev.Timestamp = timestamp
	ev.Data = append(ev.Data[:0], data...)
	return ev
}

// Schedule copies data into an event due at timestamp and queues it.
func (s *Scheduler) Schedule(data []byte, timestamp int64) error {
	ev := s.NewEvent(timestamp, data)
	if ev == nil {
		return ErrFull
	}
	s.Add(ev)
	return nil
}

func (s *Scheduler) newBucketLocked(timestamp int64) *bucket {
	var b *bucket
	if n := len(s.spare); n > 0 {
		b = s.spare[n-1]
		s.spare = s.spare[:n-1]
	} else {
		b = new(bucket)
	}
	b.reset(timestamp)
	return b
}

func (s *Scheduler) removeNextLocked(t int64) *Event {
	b := s.buckets[t]
	ev := s.arena.get(b.head)
	b.head = ev.next
	ev.next = noEvent
	b.removed++
	s.pending--
	if b.count() == 0 {
		delete(s.buckets, t)
		s.times.pop()
		s.spare = append(s.spare, b)
	}
	return ev
}
