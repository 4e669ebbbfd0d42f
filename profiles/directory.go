// Package profiles is the boundary to the portal's user directory.
// Display names are presentation only; the aggregation logic never depends
// on them.
package profiles

import "sync"

type IDirectory interface {
	DisplayNames(ids []string) map[string]string
}

// InMemoryDirectory backs the directory with a map; the portal's real
// directory service plugs in behind the same interface.
type InMemoryDirectory struct {
	mu    sync.RWMutex
	names map[string]string
}

func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{names: make(map[string]string)}
}

func (d *InMemoryDirectory) Put(id, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names[id] = name
}

// DisplayNames resolves the ids it knows; unknown ids are simply absent
// from the result, callers fall back to the raw id.
func (d *InMemoryDirectory) DisplayNames(ids []string) map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	resolved := make(map[string]string, len(ids))
	for _, id := range ids {
		if name, ok := d.names[id]; ok {
			resolved[id] = name
		}
	}
	return resolved
}
