package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultQueryCacheSize bounds the number of distinct query embeddings kept
// in memory. Query Service callers repeat the same search terms often
// enough that this saves a round trip to the sidecar per repeat.
const DefaultQueryCacheSize = 256

// batchEmbedder is the capability CachedClient wraps; *Client satisfies it.
type batchEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ModelID() string
}

// CachedClient wraps a Client with an LRU cache keyed on (model, text),
// intended for the Query Service where the same query text is searched
// repeatedly. It is deliberately not used on the indexing path, where
// chunk text is rarely repeated and caching would only waste memory.
type CachedClient struct {
	inner batchEmbedder
	cache *lru.Cache[string, []float32]
}

// NewCachedClient wraps inner with an LRU cache of the given size (0 uses
// DefaultQueryCacheSize).
func NewCachedClient(inner batchEmbedder, cacheSize int) *CachedClient {
	if cacheSize <= 0 {
		cacheSize = DefaultQueryCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedClient{inner: inner, cache: cache}
}

func (c *CachedClient) cacheKey(text string) string {
	combined := c.inner.ModelID() + "\x00" + text
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// Embed returns cached vectors where available, only calling the inner
// client for the texts that missed.
func (c *CachedClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(text)); ok {
			results[i] = vec
		} else {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, text)
		}
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	fresh, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, idx := range missIdx {
		results[idx] = fresh[j]
		c.cache.Add(c.cacheKey(texts[idx]), fresh[j])
	}
	return results, nil
}
