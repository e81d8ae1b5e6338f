package replica

import lru "github.com/hashicorp/golang-lru"

// PathCache memoizes the keys of split paths. Replicas address the same few
// paths over and over, so one cache is shared by every replica of a Store.
type PathCache interface {
	// Add remembers the keys of a path.
	Add(key, value interface{})
	// Get retrieves the keys of an already-split path.
	Get(key interface{}) (value interface{}, ok bool)
}

// NewPathCache creates a new ARC-based path cache holding size paths.
func NewPathCache(size int) PathCache {
	cache, err := lru.NewARC(size)
	if err != nil {
		panic(err)
	}
	return cache
}

// splitPath splits path through cache, when there is one. The returned
// slice is shared and must not be modified.
func splitPath(cache PathCache, path string) []string {
	if cache == nil {
		return SplitPath(path)
	}
	if keys, ok := cache.Get(path); ok {
		return keys.([]string)
	}
	keys := SplitPath(path)
	cache.Add(path, keys)
	return keys
}
