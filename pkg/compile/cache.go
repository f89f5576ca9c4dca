package compile

import (
	"sync"

	"github.com/typefence/typefence/pkg/spec"
)

// cacheKey identifies a compiled checker: tree pointer identity plus the
// deep-stage mode. Distinct tree instances with identical shape are
// deliberately distinct keys; over-compiling is cheap, mis-sharing after a
// caller mutates a specification would not be safe.
type cacheKey struct {
	tree *spec.Tree
	mode Mode
}

// Cache memoizes compiled checkers per specification identity. Construct
// one per process (or per test) and thread it through entry points; there
// is no package-level instance. Entries are write-once and never evicted.
type Cache struct {
	mu       sync.RWMutex
	entries  map[cacheKey]*Checker
	compiles int64
}

// NewCache creates an empty compilation cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]*Checker)}
}

// GetOrCompile returns the memoized checker for the tree and mode,
// compiling and publishing it on first use. Concurrent first-use callers
// may compile redundantly (compilation is pure); exactly one result is
// published and every caller observes that same instance thereafter.
//
// Parameters:
//
//	t *spec.Tree: The reduced specification tree (the identity key).
//	mode Mode: The deep-stage strategy.
//
// Returns:
//
//	*Checker: The published checker for this key.
//	error: An error if compilation fails.
func (c *Cache) GetOrCompile(t *spec.Tree, mode Mode) (*Checker, error) {
	key := cacheKey{tree: t, mode: mode}

	c.mu.RLock()
	ck := c.entries[key]
	c.mu.RUnlock()
	if ck != nil {
		return ck, nil
	}

	// Compile outside the lock; losers of the publish race discard their
	// result.
	ck, err := Compile(t, mode)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if published := c.entries[key]; published != nil {
		return published, nil
	}
	c.entries[key] = ck
	c.compiles++
	return ck, nil
}

// Compilations returns how many checkers have been published, for tests
// asserting at-most-one compilation per key.
func (c *Cache) Compilations() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.compiles
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
