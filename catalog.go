package toolsynth

import (
	"fmt"
	"slices"
	"sync"
)

// Catalog holds normalized tools keyed by name. Safe for concurrent use.
type Catalog struct {
	mu    sync.RWMutex
	tools map[string]*ToolRecord
}

// NewCatalog creates a Catalog holding the given records.
func NewCatalog(records ...*ToolRecord) (*Catalog, error) {
	c := &Catalog{tools: make(map[string]*ToolRecord, len(records))}
	for _, r := range records {
		if err := c.Add(r); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add inserts a record. Names are unique; a second record with the same name is rejected.
func (c *Catalog) Add(r *ToolRecord) error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidTool)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tools[r.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, r.Name())
	}
	c.tools[r.Name()] = r
	return nil
}

// Get returns the record with the given name, or (nil, false) if not found.
func (c *Catalog) Get(name string) (*ToolRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.tools[name]
	return r, ok
}

// Lookup is Get with an ErrToolNotFound error.
func (c *Catalog) Lookup(name string) (*ToolRecord, error) {
	r, ok := c.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return r, nil
}

// All returns every record sorted by name for deterministic order.
func (c *Catalog) All() []*ToolRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tools))
	for name := range c.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	out := make([]*ToolRecord, 0, len(names))
	for _, name := range names {
		out = append(out, c.tools[name])
	}
	return out
}

// Names returns all tool names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tools))
	for name := range c.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of records.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tools)
}
