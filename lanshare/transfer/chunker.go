package transfer

import "sync"

// ChunkPool provides reusable byte buffers for chunk operations.
type ChunkPool struct {
	pool sync.Pool
	size int
}

// NewChunkPool creates a pool of reusable chunk buffers.
func NewChunkPool(chunkSize int) *ChunkPool {
	return &ChunkPool{
		pool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, chunkSize)
				return &buf
			},
		},
		size: chunkSize,
	}
}

// Size returns the buffer size handed out by the pool.
func (p *ChunkPool) Size() int { return p.size }

// Get returns a buffer from the pool.
func (p *ChunkPool) Get() *[]byte {
	return p.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool.
func (p *ChunkPool) Put(buf *[]byte) {
	if len(*buf) == p.size {
		p.pool.Put(buf)
	}
}
