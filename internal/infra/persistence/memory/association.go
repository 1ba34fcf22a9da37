package memory

import (
	"entitygraph/pkg/domain"
	"sort"
)

// Side selects which end of an association an identifier belongs to.
type Side int

const (
	// SideLeft is the owning end (user in user_tags, tag in tag_issues).
	SideLeft Side = iota
	// SideRight is the referenced end (tag in user_tags, issue in tag_issues).
	SideRight
)

// associationIndex is a bidirectional many-to-many link set. Both directions
// keep link insertion order and never hold duplicates.
type associationIndex struct {
	name    string
	forward map[int64][]int64
	reverse map[int64][]int64
	seq     map[domain.Link]uint64
	next    uint64
}

func newAssociationIndex(name string) associationIndex {
	return associationIndex{
		name:    name,
		forward: make(map[int64][]int64),
		reverse: make(map[int64][]int64),
		seq:     make(map[domain.Link]uint64),
	}
}

func (a *associationIndex) clone() associationIndex {
	cp := associationIndex{
		name:    a.name,
		forward: make(map[int64][]int64, len(a.forward)),
		reverse: make(map[int64][]int64, len(a.reverse)),
		seq:     make(map[domain.Link]uint64, len(a.seq)),
		next:    a.next,
	}
	for k, v := range a.forward {
		cp.forward[k] = append([]int64(nil), v...)
	}
	for k, v := range a.reverse {
		cp.reverse[k] = append([]int64(nil), v...)
	}
	for k, v := range a.seq {
		cp.seq[k] = v
	}
	return cp
}

func (a *associationIndex) linked(left, right int64) bool {
	_, ok := a.seq[domain.Link{Left: left, Right: right}]
	return ok
}

// link adds the pair and reports whether it was new.
func (a *associationIndex) link(left, right int64) bool {
	key := domain.Link{Left: left, Right: right}
	if _, ok := a.seq[key]; ok {
		return false
	}
	a.next++
	a.seq[key] = a.next
	a.forward[left] = append(a.forward[left], right)
	a.reverse[right] = append(a.reverse[right], left)
	return true
}

// unlink removes the pair and reports whether it existed.
func (a *associationIndex) unlink(left, right int64) bool {
	key := domain.Link{Left: left, Right: right}
	if _, ok := a.seq[key]; !ok {
		return false
	}
	delete(a.seq, key)
	a.forward[left] = removeID(a.forward[left], right)
	if len(a.forward[left]) == 0 {
		delete(a.forward, left)
	}
	a.reverse[right] = removeID(a.reverse[right], left)
	if len(a.reverse[right]) == 0 {
		delete(a.reverse, right)
	}
	return true
}

func (a *associationIndex) rightsFor(left int64) []int64 {
	return append([]int64(nil), a.forward[left]...)
}

func (a *associationIndex) leftsFor(right int64) []int64 {
	return append([]int64(nil), a.reverse[right]...)
}

// removeAllFor drops every link touching id on the given side and returns
// the removed pairs in link order.
func (a *associationIndex) removeAllFor(id int64, side Side) []domain.Link {
	var removed []domain.Link
	switch side {
	case SideLeft:
		for _, right := range a.rightsFor(id) {
			removed = append(removed, domain.Link{Left: id, Right: right})
		}
	case SideRight:
		for _, left := range a.leftsFor(id) {
			removed = append(removed, domain.Link{Left: left, Right: id})
		}
	}
	for _, l := range removed {
		a.unlink(l.Left, l.Right)
	}
	return removed
}

// pairs returns every link in global insertion order. Replaying them through
// link reproduces the per-side ordering exactly.
func (a *associationIndex) pairs() []domain.Link {
	out := make([]domain.Link, 0, len(a.seq))
	for l := range a.seq {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return a.seq[out[i]] < a.seq[out[j]] })
	return out
}

func removeID(values []int64, id int64) []int64 {
	for i, v := range values {
		if v == id {
			return append(values[:i:i], values[i+1:]...)
		}
	}
	return values
}
