package optimize

import "testing"

func BenchmarkBytePool(b *testing.B) {
	pool := NewBytePool(64 * 1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf := pool.GetN(3528)
		buf[0] = byte(i)
		pool.Put(buf)
	}
}

func BenchmarkByteAllocation(b *testing.B) {
	for i := 0; i < b.N; i++ {
		buf := make([]byte, 3528)
		buf[0] = byte(i)
		_ = buf
	}
}
