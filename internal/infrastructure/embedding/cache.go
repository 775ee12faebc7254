package embedding

import (
	"container/list"
	"context"
	"encoding/hex"
	"sync"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"

	"flock-backend/internal/infrastructure/observability"
	"flock-backend/internal/service/embedding"
)

// CachedProvider memoizes embeddings by content hash and collapses
// concurrent requests for the same text into one upstream call.
// Debounced typing tends to resend identical drafts.
type CachedProvider struct {
	next    embedding.Provider
	size    int
	metrics *observability.Collector
	group   singleflight.Group

	mu      sync.Mutex
	order   *list.List
	entries map[string]*list.Element
}

type cacheEntry struct {
	key    string
	vector []float32
}

// NewCachedProvider wraps next with an LRU of the given size.
func NewCachedProvider(next embedding.Provider, size int, metrics *observability.Collector) *CachedProvider {
	if size <= 0 {
		size = 1
	}
	return &CachedProvider{
		next:    next,
		size:    size,
		metrics: metrics,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

func contentKey(text string) string {
	sum := blake3.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Embed returns a cached vector or calls the wrapped provider.
func (p *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := contentKey(text)
	if v, ok := p.get(key); ok {
		p.metrics.ObserveCache(true)
		return v, nil
	}
	p.metrics.ObserveCache(false)

	// The shared call outlives any single caller; each caller still
	// returns as soon as its own context is done.
	callCtx := context.WithoutCancel(ctx)
	ch := p.group.DoChan(key, func() (interface{}, error) {
		v, err := p.next.Embed(callCtx, text)
		if err != nil {
			return nil, err
		}
		p.put(key, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return copyVector(res.Val.([]float32)), nil
	}
}

// Name returns the wrapped provider's name.
func (p *CachedProvider) Name() string {
	return p.next.Name()
}

// Len returns the number of cached vectors.
func (p *CachedProvider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.order.Len()
}

func (p *CachedProvider) get(key string) ([]float32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.entries[key]
	if !ok {
		return nil, false
	}
	p.order.MoveToFront(el)
	return copyVector(el.Value.(*cacheEntry).vector), true
}

func (p *CachedProvider) put(key string, v []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if el, ok := p.entries[key]; ok {
		p.order.MoveToFront(el)
		return
	}
	p.entries[key] = p.order.PushFront(&cacheEntry{key: key, vector: copyVector(v)})
	for p.order.Len() > p.size {
		oldest := p.order.Back()
		p.order.Remove(oldest)
		delete(p.entries, oldest.Value.(*cacheEntry).key)
	}
}

func copyVector(v []float32) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
