package serialshare

import (
	"sync"

	"go.uber.org/atomic"
)

// readBufferSize is the chunk size used by the reader and bridge goroutines.
const readBufferSize = 1024

// BufferPool hands out fixed-size read buffers to the session workers. A
// buffer is held for the lifetime of one worker, so the pool mostly saves
// allocations across close and reopen cycles.
type BufferPool struct {
	pool sync.Pool
	size int

	gets    atomic.Int64
	puts    atomic.Int64
	creates atomic.Int64
}

func NewBufferPool(bufferSize int) *BufferPool {
	bp := &BufferPool{size: bufferSize}
	bp.pool.New = func() any {
		bp.creates.Inc()
		b := make([]byte, bp.size)
		return &b
	}
	return bp
}

// Get returns a buffer of the pool's size.
func (bp *BufferPool) Get() []byte {
	bp.gets.Inc()
	return *bp.pool.Get().(*[]byte)
}

// Put zeroes buf and returns it to the pool. Buffers that did not come from
// this pool are dropped.
func (bp *BufferPool) Put(buf []byte) {
	if cap(buf) != bp.size {
		return
	}
	buf = buf[:bp.size]
	clear(buf)
	bp.puts.Inc()
	bp.pool.Put(&buf)
}

func (bp *BufferPool) Stats() PoolStats {
	gets, puts := bp.gets.Load(), bp.puts.Load()
	return PoolStats{
		Size:    bp.size,
		Gets:    gets,
		Puts:    puts,
		Creates: bp.creates.Load(),
		InUse:   gets - puts,
	}
}

// PoolStats is a snapshot of a BufferPool's counters.
type PoolStats struct {
	Size    int   `json:"size"`
	Gets    int64 `json:"gets"`
	Puts    int64 `json:"puts"`
	Creates int64 `json:"creates"`

	// InUse is the number of buffers currently held by workers.
	InUse int64 `json:"in_use"`
}

// HitRatio is the share of Get calls served without allocating.
func (ps PoolStats) HitRatio() float64 {
	if ps.Gets == 0 {
		return 0
	}
	return float64(ps.Gets-ps.Creates) / float64(ps.Gets)
}

// copyChunk returns a private copy of b so a pooled buffer can be reused.
func copyChunk(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
