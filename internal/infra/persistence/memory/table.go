package memory

import (
	"entitygraph/pkg/domain"
)

// table is an insertion-ordered keyed store for one entity kind. Records are
// plain value types, so copying a record is a deep copy.
type table[T any] struct {
	entity   domain.EntityType
	idOf     func(T) int64
	withID   func(T, int64) T
	validate func(T) error
	rows     map[int64]T
	order    []int64
}

func newTable[T any](entity domain.EntityType, idOf func(T) int64, withID func(T, int64) T, validate func(T) error) table[T] {
	return table[T]{
		entity:   entity,
		idOf:     idOf,
		withID:   withID,
		validate: validate,
		rows:     make(map[int64]T),
	}
}

func (t *table[T]) clone() table[T] {
	cp := *t
	cp.rows = make(map[int64]T, len(t.rows))
	for k, v := range t.rows {
		cp.rows[k] = v
	}
	cp.order = append([]int64(nil), t.order...)
	return cp
}

func (t *table[T]) has(id int64) bool {
	_, ok := t.rows[id]
	return ok
}

func (t *table[T]) find(id int64) (T, bool) {
	v, ok := t.rows[id]
	return v, ok
}

func (t *table[T]) get(id int64) (T, error) {
	v, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, domain.NotFoundError{Entity: t.entity, ID: id}
	}
	return v, nil
}

// insert validates rec and stores it. Existing ids are never overwritten.
func (t *table[T]) insert(rec T) error {
	if err := t.validate(rec); err != nil {
		return err
	}
	id := t.idOf(rec)
	if t.has(id) {
		return domain.DuplicateIDError{Entity: t.entity, ID: id}
	}
	t.rows[id] = rec
	t.order = append(t.order, id)
	return nil
}

// update applies mutator to a copy of the record, pins the identifier,
// re-validates, runs guards, and only then replaces the stored record.
func (t *table[T]) update(id int64, mutator func(*T) error, guards ...func(T) error) (T, T, error) {
	var zero T
	before, err := t.get(id)
	if err != nil {
		return zero, zero, err
	}
	after := before
	if mutator != nil {
		if err := mutator(&after); err != nil {
			return zero, zero, err
		}
	}
	after = t.withID(after, id)
	if err := t.validate(after); err != nil {
		return zero, zero, err
	}
	for _, guard := range guards {
		if err := guard(after); err != nil {
			return zero, zero, err
		}
	}
	t.rows[id] = after
	return before, after, nil
}

func (t *table[T]) remove(id int64) (T, error) {
	rec, err := t.get(id)
	if err != nil {
		return rec, err
	}
	delete(t.rows, id)
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return rec, nil
}

// list returns a fresh slice in insertion order.
func (t *table[T]) list() []T {
	out := make([]T, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.rows[id])
	}
	return out
}

// nextID returns one past the largest identifier currently stored. Deleting
// the highest record frees its id for the next allocation.
func (t *table[T]) nextID() int64 {
	var highest int64
	for id := range t.rows {
		if id > highest {
			highest = id
		}
	}
	return highest + 1
}
