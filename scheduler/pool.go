package scheduler

import "sync/atomic"

// freePool is a bounded single-producer, single-consumer ring of recycled
// event indices.
//
// Thread assignment:
//   - push: the goroutine that consumes events (the render loop)
//   - pop: the goroutine that creates events (the MIDI producer)
//
// The same goroutine may do both. A third party must not touch the pool.
type freePool struct {
	// Separate cache lines so the two sides don't false-share.
	writePos atomic.Uint64
	_pad1    [56]byte
	readPos  atomic.Uint64
	_pad2    [56]byte

	slots []int32
	mask  uint64
	limit uint64
}

func newFreePool(maxSize int) *freePool {
	if maxSize < 2 {
		maxSize = 2
	}
	size := 1
	for size < maxSize {
		size <<= 1
	}
	return &freePool{
		slots: make([]int32, size),
		mask:  uint64(size - 1),
		limit: uint64(maxSize),
	}
}

// push stores id and reports whether it was kept. A full pool drops it.
func (p *freePool) push(id int32) bool {
	w := p.writePos.Load()
	r := p.readPos.Load()
	if w-r >= p.limit {
		return false
	}
	p.slots[w&p.mask] = id
	p.writePos.Store(w + 1)
	return true
}

// pop returns a pooled id. The last pooled entry is never handed out.
func (p *freePool) pop() (int32, bool) {
	r := p.readPos.Load()
	w := p.writePos.Load()
	if w-r <= 1 {
		return noEvent, false
	}
	id := p.slots[r&p.mask]
	p.readPos.Store(r + 1)
	return id, true
}

func (p *freePool) len() int {
	return int(p.writePos.Load() - p.readPos.Load())
}
