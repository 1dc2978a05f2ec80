package scheduler

// bucket holds every pending event that shares one timestamp, oldest first.
// A bucket in the index is never empty.
type bucket struct {
	timestamp int64
	head      int32
	tail      int32
	added     int
	removed   int
}

func (b *bucket) count() int {
	return b.added - b.removed
}

func (b *bucket) reset(timestamp int64) {
	b.timestamp = timestamp
	b.head = noEvent
	b.tail = noEvent
	b.added = 0
	b.removed = 0
}

// timeHeap is a min-heap of the distinct pending timestamps.
// container/heap would box every int64 on Push, so it is sifted by hand.
type timeHeap []int64

func (h timeHeap) min() int64 {
	return h[0]
}

func (h *timeHeap) push(t int64) {
	*h = append(*h, t)
	s := *h
	i := len(s) - 1
	for i > 0 {
		parent := (i - 1) / 2
		if s[parent] <= s[i] {
			break
		}
		s[parent], s[i] = s[i], s[parent]
		i = parent
	}
}

func (h *timeHeap) pop() int64 {
	s := *h
	top := s[0]
	last := len(s) - 1
	s[0] = s[last]
	s = s[:last]
	i := 0
	for {
		l := 2*i + 1
		if l >= len(s) {
			break
		}
		smallest := l
		if r := l + 1; r < len(s) && s[r] < s[l] {
			smallest = r
		}
		if s[i] <= s[smallest] {
			break
		}
		s[i], s[smallest] = s[smallest], s[i]
		i = smallest
	}
	*h = s
	return top
}
