package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps objects in process memory in insertion order. It backs
// dry runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	classes map[string]*memoryClass
}

type memoryClass struct {
	order   []string
	objects map[string]Object
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{classes: make(map[string]*memoryClass)}
}

// Get returns a copy of the object
func (m *MemoryStore) Get(ctx context.Context, class, id string) (Object, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.classes[class]
	if !ok {
		return nil, false, nil
	}
	obj, ok := c.objects[id]
	if !ok {
		return nil, false, nil
	}
	return cloneObject(obj), true, nil
}

// Query filters, orders and pages the class
func (m *MemoryStore) Query(ctx context.Context, class string, q Query) (*QueryResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	where, err := normalizeFilter(q.Where)
	if err != nil {
		return nil, err
	}

	matched := make([]Object, 0)
	if c, ok := m.classes[class]; ok {
		for _, id := range c.order {
			obj := c.objects[id]
			if matches(obj, where) {
				matched = append(matched, obj)
			}
		}
	}

	if q.Order != "" {
		field, desc := strings.TrimPrefix(q.Order, "-"), strings.HasPrefix(q.Order, "-")
		sort.SliceStable(matched, func(i, j int) bool {
			if desc {
				return lessValue(matched[j][field], matched[i][field])
			}
			return lessValue(matched[i][field], matched[j][field])
		})
	}

	total := len(matched)
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}

	start := min(q.Skip, total)
	end := min(start+limit, total)

	results := make([]Object, 0, end-start)
	for _, obj := range matched[start:end] {
		results = append(results, cloneObject(obj))
	}

	return &QueryResult{Results: results, Count: total}, nil
}

// Save inserts or merges fields into an object
func (m *MemoryStore) Save(ctx context.Context, class, id string, fields Object) (string, error) {
	normalized, err := Encode(fields)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.classes[class]
	if !ok {
		c = &memoryClass{objects: make(map[string]Object)}
		m.classes[class] = c
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	if id == "" {
		id = uuid.New().String()
	}

	obj, exists := c.objects[id]
	if !exists {
		obj = Object{"createdAt": now}
		c.order = append(c.order, id)
	}
	for k, v := range normalized {
		obj[k] = v
	}
	obj["objectId"] = id
	obj["updatedAt"] = now
	c.objects[id] = obj

	return id, nil
}

// Delete removes the object if it exists
func (m *MemoryStore) Delete(ctx context.Context, class, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.classes[class]
	if !ok {
		return nil
	}
	if _, ok := c.objects[id]; !ok {
		return nil
	}

	delete(c.objects, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}

	return nil
}

// normalizeFilter JSON-encodes every constraint value so that ints, floats
// and strings compare the way they do once stored
func normalizeFilter(where Filter) (map[string][]string, error) {
	out := make(map[string][]string, len(where))
	for field, value := range where {
		values := []any{value}
		if in, ok := value.(In); ok {
			values = in
		}

		encoded := make([]string, 0, len(values))
		for _, v := range values {
			data, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("invalid constraint on %s: %w", field, err)
			}
			encoded = append(encoded, string(data))
		}
		out[field] = encoded
	}
	return out, nil
}

func matches(obj Object, where map[string][]string) bool {
	for field, allowed := range where {
		v, ok := obj[field]
		if !ok {
			return false
		}
		data, err := json.Marshal(v)
		if err != nil {
			return false
		}
		found := false
		for _, a := range allowed {
			if a == string(data) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func lessValue(a, b any) bool {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			return av < bv
		}
	case string:
		if bv, ok := b.(string); ok {
			return av < bv
		}
	}
	return false
}

func cloneObject(obj Object) Object {
	out := make(Object, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	return out
}
