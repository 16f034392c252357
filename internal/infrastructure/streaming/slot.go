package streaming

import "sync/atomic"

// LatestSlot is a single-capacity exchange cell: Store replaces any unread
// value and Take empties the cell. Neither call blocks.
type LatestSlot[T any] struct {
	v atomic.Pointer[T]
}

// Store puts v into the slot and reports whether an unread value was
// discarded.
func (s *LatestSlot[T]) Store(v T) (replaced bool) {
	return s.v.Swap(&v) != nil
}

// Take returns and clears the current value.
func (s *LatestSlot[T]) Take() (T, bool) {
	p := s.v.Swap(nil)
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}

// Has reports whether a value is waiting.
func (s *LatestSlot[T]) Has() bool {
	return s.v.Load() != nil
}
