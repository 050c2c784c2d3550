// Package sortedset provides an ordered set of page numbers.
//
// The viewport tracker keeps the pages intersecting the viewport here so that
// refreshes always walk them in ascending order.
package sortedset

import "github.com/google/btree"

// degree is the B-tree node degree. Documents rarely have more than a few
// hundred visible pages at once, so a small degree keeps nodes cache-sized.
const degree = 16

// Set is a duplicate-free, sorted collection of ints.
// NOT safe for concurrent use; callers provide locking.
type Set struct {
	tree *btree.BTreeG[int]
}

// New creates an empty Set.
func New() *Set {
	return &Set{tree: btree.NewOrderedG[int](degree)}
}

// Add inserts x. Returns true if x was not already present.
func (s *Set) Add(x int) bool {
	_, replaced := s.tree.ReplaceOrInsert(x)
	return !replaced
}

// Delete removes x. Returns true if x was present.
func (s *Set) Delete(x int) bool {
	_, found := s.tree.Delete(x)
	return found
}

// Has reports whether x is in the set.
func (s *Set) Has(x int) bool {
	return s.tree.Has(x)
}

// Len returns the number of elements.
func (s *Set) Len() int {
	return s.tree.Len()
}

// Min returns the smallest element, or false if the set is empty.
func (s *Set) Min() (int, bool) {
	return s.tree.Min()
}

// Ascend calls fn for each element in ascending order until fn returns false.
func (s *Set) Ascend(fn func(x int) bool) {
	s.tree.Ascend(fn)
}

// Slice returns the elements in ascending order.
func (s *Set) Slice() []int {
	out := make([]int, 0, s.tree.Len())
	s.tree.Ascend(func(x int) bool {
		out = append(out, x)
		return true
	})
	return out
}

// Clear removes all elements.
func (s *Set) Clear() {
	s.tree.Clear(false)
}
