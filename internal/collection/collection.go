// Package collection holds the ordered, id-keyed collections mirrored by the
// synchronized store. A Collection is not safe for concurrent use; callers
// serialize access.
package collection

import (
	"fmt"

	"github.com/score-tracker/internal/domain"
)

// Collection is an insertion-ordered sequence of entities keyed by id
type Collection[T any] struct {
	table domain.Table
	idOf  func(T) string
	items []T
	index map[string]int
}

// New creates an empty collection for table
func New[T any](table domain.Table, idOf func(T) string) *Collection[T] {
	return &Collection[T]{
		table: table,
		idOf:  idOf,
		index: make(map[string]int),
	}
}

// Table returns the remote table this collection mirrors
func (c *Collection[T]) Table() domain.Table {
	return c.table
}

// Reset replaces the contents with items, keeping their order. A repeated id
// keeps the position of its first occurrence and the fields of its last.
func (c *Collection[T]) Reset(items []T) {
	c.items = make([]T, 0, len(items))
	c.index = make(map[string]int, len(items))
	for _, item := range items {
		c.Upsert(item)
	}
}

// Upsert appends item when its id is absent and replaces it in place
// otherwise. It reports whether the item was appended.
func (c *Collection[T]) Upsert(item T) bool {
	id := c.idOf(item)
	if i, ok := c.index[id]; ok {
		c.items[i] = item
		return false
	}
	c.index[id] = len(c.items)
	c.items = append(c.items, item)
	return true
}

// Insert appends item when its id is absent and leaves an existing entity
// untouched. It reports whether the item was appended.
func (c *Collection[T]) Insert(item T) bool {
	if _, ok := c.index[c.idOf(item)]; ok {
		return false
	}
	c.index[c.idOf(item)] = len(c.items)
	c.items = append(c.items, item)
	return true
}

// Remove deletes the entity with id and reports whether it was present
func (c *Collection[T]) Remove(id string) bool {
	i, ok := c.index[id]
	if !ok {
		return false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	delete(c.index, id)
	c.reindex(i)
	return true
}

// RemoveWhere deletes every entity matching pred and returns their ids
func (c *Collection[T]) RemoveWhere(pred func(T) bool) []string {
	var removed []string
	kept := c.items[:0]
	for _, item := range c.items {
		if pred(item) {
			id := c.idOf(item)
			delete(c.index, id)
			removed = append(removed, id)
			continue
		}
		kept = append(kept, item)
	}
	// clear the tail so removed values can be collected
	var zero T
	for i := len(kept); i < len(c.items); i++ {
		c.items[i] = zero
	}
	c.items = kept
	if len(removed) > 0 {
		c.reindex(0)
	}
	return removed
}

// Get returns the entity with id
func (c *Collection[T]) Get(id string) (T, bool) {
	i, ok := c.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	return c.items[i], true
}

// Items returns a copy of the entities in order
func (c *Collection[T]) Items() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of entities
func (c *Collection[T]) Len() int {
	return len(c.items)
}

// Apply folds a change event into the collection. INSERT and UPDATE upsert
// the new row, DELETE removes the old id. Applying the same event twice has
// the same effect as applying it once.
func (c *Collection[T]) Apply(ev domain.ChangeEvent) error {
	if ev.Table != c.table {
		return fmt.Errorf("%w: %s event applied to %s", domain.ErrInvalidChange, ev.Table, c.table)
	}

	switch ev.Type {
	case domain.EventInsert, domain.EventUpdate:
		row, err := domain.DecodeRow[T](ev)
		if err != nil {
			return err
		}
		if c.idOf(row) == "" {
			return fmt.Errorf("%w: %s row without id", domain.ErrInvalidChange, c.table)
		}
		c.Upsert(row)
	case domain.EventDelete:
		id := ev.OldID()
		if id == "" {
			return fmt.Errorf("%w: DELETE without old id", domain.ErrInvalidChange)
		}
		c.Remove(id)
	default:
		return fmt.Errorf("%w: unknown event type %q", domain.ErrInvalidChange, ev.Type)
	}
	return nil
}

func (c *Collection[T]) reindex(from int) {
	for i := from; i < len(c.items); i++ {
		c.index[c.idOf(c.items[i])] = i
	}
}
