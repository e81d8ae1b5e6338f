package replica

import (
	"fmt"
	"strconv"
	"strings"
)

// PathSeparator separates the keys of a path.
const PathSeparator = "."

// rootPath is the bucket path of Raw and ChildAdded listeners.
const rootPath = ""

// SplitPath splits a dotted path into its keys. The empty path has no keys
// and addresses the root of the data tree.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, PathSeparator)
}

// JoinPath appends key to path.
func JoinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + PathSeparator + key
}

// Pointer addresses a single value: the container holding it and its key
// within that container. Containers are map[string]interface{} or
// []interface{}; a key into a sequence is its 1-based decimal index.
type Pointer struct {
	Container interface{}
	Key       string
}

// Get returns the value at p and whether it is present.
func (p Pointer) Get() (interface{}, bool) {
	return lookup(p.Container, p.Key)
}

// Set stores value at p. Only existing positions of a sequence can be set.
func (p Pointer) Set(value interface{}) bool {
	switch c := p.Container.(type) {
	case map[string]interface{}:
		c[p.Key] = value
		return true
	case []interface{}:
		i, ok := seqIndex(c, p.Key)
		if !ok {
			return false
		}
		c[i] = value
		return true
	}
	return false
}

// ResolvePointer resolves path against root to the container of its final
// key. A path with at most one key resolves to root itself. An absent or
// non-container intermediate value yields ErrPathNotFound.
func ResolvePointer(root map[string]interface{}, path string) (Pointer, error) {
	return resolvePointer(root, SplitPath(path))
}

// ResolveContainer resolves path to the container it names. The empty path
// names root.
func ResolveContainer(root map[string]interface{}, path string) (interface{}, error) {
	return resolveContainer(root, SplitPath(path))
}

// GetValue returns the value at path.
func GetValue(root map[string]interface{}, path string) (interface{}, bool) {
	keys := SplitPath(path)
	if len(keys) == 0 {
		return root, root != nil
	}
	p, err := resolvePointer(root, keys)
	if err != nil {
		return nil, false
	}
	return p.Get()
}

func resolvePointer(root map[string]interface{}, keys []string) (Pointer, error) {
	if len(keys) <= 1 {
		key := ""
		if len(keys) == 1 {
			key = keys[0]
		}
		return Pointer{Container: root, Key: key}, nil
	}
	var container interface{} = root
	for i, k := range keys[:len(keys)-1] {
		next, ok := lookup(container, k)
		if !ok || !isContainer(next) {
			return Pointer{}, fmt.Errorf("%w: %q", ErrPathNotFound, strings.Join(keys[:i+1], PathSeparator))
		}
		container = next
	}
	return Pointer{Container: container, Key: keys[len(keys)-1]}, nil
}

func resolveContainer(root map[string]interface{}, keys []string) (interface{}, error) {
	if len(keys) == 0 {
		return root, nil
	}
	p, err := resolvePointer(root, keys)
	if err != nil {
		return nil, err
	}
	v, ok := p.Get()
	if !ok || !isContainer(v) {
		return nil, fmt.Errorf("%w: %q", ErrPathNotFound, strings.Join(keys, PathSeparator))
	}
	return v, nil
}

func lookup(container interface{}, key string) (interface{}, bool) {
	switch c := container.(type) {
	case map[string]interface{}:
		v, ok := c[key]
		return v, ok
	case []interface{}:
		i, ok := seqIndex(c, key)
		if !ok {
			return nil, false
		}
		return c[i], true
	}
	return nil, false
}

// seqIndex converts a 1-based key to a slice offset.
func seqIndex(seq []interface{}, key string) (int, bool) {
	n, err := strconv.Atoi(key)
	if err != nil || n < 1 || n > len(seq) {
		return 0, false
	}
	return n - 1, true
}

func isContainer(v interface{}) bool {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return true
	}
	return false
}
