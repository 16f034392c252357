package optimize

import (
	"sync"
)

// BytePool is a pool of byte slices to reduce allocations
type BytePool struct {
	pool sync.Pool
	size int
}

// NewBytePool creates a new byte pool with specified size
func NewBytePool(size int) *BytePool {
	return &BytePool{
		size: size,
		pool: sync.Pool{
			New: func() interface{} {
				b := make([]byte, size)
				return &b
			},
		},
	}
}

// Size returns the capacity of pooled slices
func (p *BytePool) Size() int {
	return p.size
}

// Get gets a byte slice from the pool
func (p *BytePool) Get() []byte {
	return *(p.pool.Get().(*[]byte))
}

// GetN returns a slice of length n. Requests larger than the pool size are
// served by a fresh allocation that Put will later discard.
func (p *BytePool) GetN(n int) []byte {
	if n > p.size {
		return make([]byte, n)
	}
	return p.Get()[:n]
}

// Put returns a byte slice to the pool
func (p *BytePool) Put(b []byte) {
	// Oversized one-off buffers are left to the GC
	if cap(b) != p.size {
		return
	}
	b = b[:p.size]
	p.pool.Put(&b)
}
