package encoding

import (
	"bytes"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// pooledHash bundles an xxhash digest with a scratch buffer so
// Component/Name hashing avoids a fresh allocation on every call.
type pooledHash struct {
	hash   *xxhash.Digest
	buffer *bytes.Buffer
}

// hashPool is a sync.Pool of pooledHash that resets state on Get.
type hashPool struct {
	pool sync.Pool
}

func newHashPool() *hashPool {
	return &hashPool{
		pool: sync.Pool{
			New: func() any {
				return &pooledHash{
					hash:   xxhash.New(),
					buffer: new(bytes.Buffer),
				}
			},
		},
	}
}

func (p *hashPool) Get() *pooledHash {
	h := p.pool.Get().(*pooledHash)
	h.hash.Reset()
	h.buffer.Reset()
	return h
}

func (p *hashPool) Put(h *pooledHash) {
	p.pool.Put(h)
}

var xxHashPool = newHashPool()
