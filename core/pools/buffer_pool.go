package pools

import (
	"sync"
	"sync/atomic"
)

// Response buffer size tiers
const (
	SmallBufferSize  = 512       // canned responses and small Fibonacci numbers
	MediumBufferSize = 4 * 1024  // f(n) up to roughly n=19000
	LargeBufferSize  = 32 * 1024 // everything else starts here and grows
)

// BufferPool manages append-style response buffers with three size tiers.
// Buffers are handed out with length zero.
type BufferPool struct {
	small  sync.Pool
	medium sync.Pool
	large  sync.Pool

	smallHits  atomic.Uint64
	mediumHits atomic.Uint64
	largeHits  atomic.Uint64
	totalGets  atomic.Uint64
	discarded  atomic.Uint64
}

// NewBufferPool creates a new buffer pool
func NewBufferPool() *BufferPool {
	return &BufferPool{
		small: sync.Pool{
			New: func() any {
				buf := make([]byte, 0, SmallBufferSize)
				return &buf
			},
		},
		medium: sync.Pool{
			New: func() any {
				buf := make([]byte, 0, MediumBufferSize)
				return &buf
			},
		},
		large: sync.Pool{
			New: func() any {
				buf := make([]byte, 0, LargeBufferSize)
				return &buf
			},
		},
	}
}

// Get acquires a buffer whose capacity fits estimatedSize where possible.
func (bp *BufferPool) Get(estimatedSize int) *[]byte {
	bp.totalGets.Add(1)

	switch {
	case estimatedSize <= SmallBufferSize:
		bp.smallHits.Add(1)
		return bp.small.Get().(*[]byte)
	case estimatedSize <= MediumBufferSize:
		bp.mediumHits.Add(1)
		return bp.medium.Get().(*[]byte)
	default:
		bp.largeHits.Add(1)
		return bp.large.Get().(*[]byte)
	}
}

// Put returns a buffer to the pool. A buffer that grew past the large tier
// while in use is dropped so one huge response does not pin memory.
func (bp *BufferPool) Put(buf *[]byte) {
	if buf == nil {
		return
	}

	*buf = (*buf)[:0]

	c := cap(*buf)
	switch {
	case c < SmallBufferSize:
		bp.discarded.Add(1)
	case c < MediumBufferSize:
		bp.small.Put(buf)
	case c < LargeBufferSize:
		bp.medium.Put(buf)
	case c <= 4*LargeBufferSize:
		bp.large.Put(buf)
	default:
		bp.discarded.Add(1)
	}
}

// Stats returns buffer pool statistics
func (bp *BufferPool) Stats() BufferStats {
	return BufferStats{
		SmallHits:  bp.smallHits.Load(),
		MediumHits: bp.mediumHits.Load(),
		LargeHits:  bp.largeHits.Load(),
		TotalGets:  bp.totalGets.Load(),
		Discarded:  bp.discarded.Load(),
	}
}

// BufferStats contains buffer pool statistics
type BufferStats struct {
	SmallHits  uint64 `json:"small_hits"`
	MediumHits uint64 `json:"medium_hits"`
	LargeHits  uint64 `json:"large_hits"`
	TotalGets  uint64 `json:"total_gets"`
	Discarded  uint64 `json:"discarded"`
}
