package relay

import "sync"

// framePool recycles relay read buffers of a single size.
type framePool struct {
	pool sync.Pool
}

func newFramePool(size int) *framePool {
	fp := &framePool{}
	fp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return fp
}

func (p *framePool) Get() *[]byte {
	return p.pool.Get().(*[]byte)
}

func (p *framePool) Put(b *[]byte) {
	p.pool.Put(b)
}
