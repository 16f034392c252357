package audio

import "sync"

// StreamQueues holds one bounded FIFO per remote sender. Queues are created
// lazily on the first frame and are never removed; the bound keeps an idle
// sender's queue from growing.
type StreamQueues struct {
	capacity int

	mu     sync.Mutex
	order  []int32
	queues map[int32]chan []int16
}

// NewStreamQueues builds the set with a per-sender capacity.
func NewStreamQueues(capacity int) *StreamQueues {
	return &StreamQueues{
		capacity: capacity,
		queues:   make(map[int32]chan []int16),
	}
}

// Offer enqueues a frame for sender. A full queue drops the new frame and
// Offer returns false.
func (q *StreamQueues) Offer(sender int32, frame []int16) bool {
	q.mu.Lock()
	ch, ok := q.queues[sender]
	if !ok {
		ch = make(chan []int16, q.capacity)
		q.queues[sender] = ch
		q.order = append(q.order, sender)
	}
	q.mu.Unlock()

	select {
	case ch <- frame:
		return true
	default:
		return false
	}
}

// Poll takes at most one frame from every queue, appending them to dst.
func (q *StreamQueues) Poll(dst [][]int16) [][]int16 {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range q.order {
		select {
		case f := <-q.queues[id]:
			dst = append(dst, f)
		default:
		}
	}
	return dst
}

// Len returns the number of frames queued for sender.
func (q *StreamQueues) Len(sender int32) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if ch, ok := q.queues[sender]; ok {
		return len(ch)
	}
	return 0
}

// Senders returns the number of senders seen so far.
func (q *StreamQueues) Senders() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}
