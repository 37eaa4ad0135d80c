package benchmark

import (
	"sync"
)

// bufferPool recycles part buffers so a long run allocates roughly
// parallelism × part size once instead of once per part.
type bufferPool struct {
	size int
	pool sync.Pool
}

func newBufferPool(size int64) *bufferPool {
	p := &bufferPool{size: int(size)}
	p.pool.New = func() any {
		buf := make([]byte, p.size)
		return &buf
	}
	return p
}

// Get gets a buffer of at least size bytes, resliced to size.
func (p *bufferPool) Get(size int64) *[]byte {
	bufp := p.pool.Get().(*[]byte)
	if int64(cap(*bufp)) < size {
		buf := make([]byte, size)
		return &buf
	}
	*bufp = (*bufp)[:size]
	return bufp
}

// Put returns a buffer to the pool
func (p *bufferPool) Put(bufp *[]byte) {
	if cap(*bufp) < p.size {
		return
	}
	*bufp = (*bufp)[:p.size]
	p.pool.Put(bufp)
}
