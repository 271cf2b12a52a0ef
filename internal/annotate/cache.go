package annotate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jackzampolin/folio/internal/types"
)

// DefaultCacheSize is the number of book indexes kept when no size is configured.
const DefaultCacheSize = 128

// IndexCache keeps built indexes for whole book dictionaries.
// Entries are keyed by book ID and a content hash of the dictionary, so an
// edited dictionary always misses and never serves a stale index.
type IndexCache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *Index]
}

// NewIndexCache creates a cache holding up to size indexes.
// A non-positive size falls back to DefaultCacheSize.
func NewIndexCache(size int) (*IndexCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, *Index](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create index cache: %w", err)
	}
	return &IndexCache{cache: c}, nil
}

// DictionaryVersion returns a stable content hash of dict.
// encoding/json sorts map keys, so equal dictionaries hash equally.
func DictionaryVersion(dict types.Dictionary) string {
	if dict == nil {
		dict = types.Dictionary{}
	}
	data, _ := json.Marshal(dict)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

func cacheKey(bookID, version string) string {
	return bookID + "@" + version
}

// Get returns the index for bookID's current dictionary, building it on a miss.
func (c *IndexCache) Get(bookID string, dict types.Dictionary) *Index {
	key := cacheKey(bookID, DictionaryVersion(dict))

	c.mu.Lock()
	defer c.mu.Unlock()

	if idx, ok := c.cache.Get(key); ok {
		return idx
	}
	idx := BuildIndex(dict)
	c.cache.Add(key, idx)
	return idx
}

// Invalidate drops every cached index for bookID.
func (c *IndexCache) Invalidate(bookID string) int {
	prefix := bookID + "@"

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.cache.Remove(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached indexes.
func (c *IndexCache) Len() int {
	return c.cache.Len()
}

// Processor annotates chapters for a known book, reusing cached indexes.
// A nil cache makes it behave exactly like ProcessChapterContent.
type Processor struct {
	cache *IndexCache
}

// NewProcessor returns a processor backed by cache.
func NewProcessor(cache *IndexCache) *Processor {
	return &Processor{cache: cache}
}

// Process annotates text with bookID's dictionary.
func (p *Processor) Process(bookID, text, title string, dict types.Dictionary) types.ProcessedChapter {
	if p == nil || p.cache == nil || bookID == "" {
		return ProcessChapterContent(text, title, dict)
	}
	return ProcessWithIndex(text, title, p.cache.Get(bookID, dict))
}

// Invalidate forgets cached state for bookID.
func (p *Processor) Invalidate(bookID string) {
	if p == nil || p.cache == nil {
		return
	}
	p.cache.Invalidate(bookID)
}

// CacheLen returns the number of indexes currently cached.
func (p *Processor) CacheLen() int {
	if p == nil || p.cache == nil {
		return 0
	}
	return p.cache.Len()
}
