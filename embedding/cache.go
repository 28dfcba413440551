package embedding

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/vecstore/resource"
)

// Cached decorates an Embedder with an in-memory LRU cache keyed by
// input text. Cached vectors are shared; treat them as read-only.
type Cached struct {
	inner    Embedder
	capacity int
	rc       *resource.Controller

	mu        sync.Mutex
	items     map[string]*list.Element
	evictList *list.List

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	text string
	vec  []float32
}

var _ Embedder = (*Cached)(nil)

// NewCached wraps inner with an LRU cache holding up to capacity
// vectors. If rc is non-nil, cached vector bytes are tracked against
// its memory limit; entries the controller denies are not cached.
func NewCached(inner Embedder, capacity int, rc *resource.Controller) *Cached {
	if capacity < 1 {
		capacity = 1
	}

	return &Cached{
		inner:     inner,
		capacity:  capacity,
		rc:        rc,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
	}
}

// Embed returns the cached vector for text, calling the inner embedder
// on a miss.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}

	if vec, ok := c.get(text); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.set(text, vec)

	return vec, nil
}

// EmbedBatch resolves cached texts locally and forwards only the
// misses, deduplicated, to the inner embedder in a single batch.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	result := make([][]float32, len(texts))

	var missTexts []string
	missFor := make(map[string][]int)

	for i, text := range texts {
		if vec, ok := c.get(text); ok {
			result[i] = vec
			continue
		}
		if _, seen := missFor[text]; !seen {
			missTexts = append(missTexts, text)
		}
		missFor[text] = append(missFor[text], i)
	}

	if len(missTexts) > 0 {
		vecs, err := c.inner.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}

		for j, text := range missTexts {
			c.set(text, vecs[j])
			for _, i := range missFor[text] {
				result[i] = vecs[j]
			}
		}
	}

	return result, nil
}

// Dimension returns the inner embedder's dimensionality.
func (c *Cached) Dimension() int {
	return c.inner.Dimension()
}

// Stats returns the hit and miss counts.
func (c *Cached) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of cached vectors.
func (c *Cached) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cached) get(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[text]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return ent.Value.(*cacheEntry).vec, true
	}

	c.misses.Add(1)
	return nil, false
}

func (c *Cached) set(text string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[text]; ok {
		// Same text embeds to the same vector; just refresh recency.
		c.evictList.MoveToFront(ent)
		return
	}

	for len(c.items) >= c.capacity {
		element := c.evictList.Back()
		if element == nil {
			break
		}
		c.removeElement(element)
	}

	if !c.rc.TryAcquireMemory(vecBytes(vec)) {
		return
	}

	c.items[text] = c.evictList.PushFront(&cacheEntry{text: text, vec: vec})
}

func (c *Cached) removeElement(e *list.Element) {
	c.evictList.Remove(e)
	ent := e.Value.(*cacheEntry)
	delete(c.items, ent.text)
	c.rc.ReleaseMemory(vecBytes(ent.vec))
}

func vecBytes(vec []float32) int64 {
	return int64(len(vec)) * 4
}
