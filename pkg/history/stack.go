// Package history provides the LIFO stacks an executor keeps its undo and
// redo histories in.
package history

// Stack is a last-in-first-out sequence with an optional capacity.
//
// When a capacity is set, pushing onto a full stack evicts the oldest
// entries; the evicted entries are returned to the caller, which owns their
// disposal. A Stack is not safe for concurrent use.
type Stack[T comparable] struct {
	items    []T
	capacity int // 0 means unbounded
}

// NewStack creates a stack. A capacity of zero or less is unbounded.
func NewStack[T comparable](capacity int) *Stack[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Stack[T]{capacity: capacity}
}

// Capacity returns the configured depth, 0 when unbounded.
func (s *Stack[T]) Capacity() int {
	return s.capacity
}

// Push appends item on top and returns the entries evicted from the bottom to
// stay within capacity, oldest first.
func (s *Stack[T]) Push(item T) []T {
	s.items = append(s.items, item)
	if s.capacity == 0 || len(s.items) <= s.capacity {
		return nil
	}

	over := len(s.items) - s.capacity
	evicted := make([]T, over)
	copy(evicted, s.items[:over])

	// Shift left so the backing array does not keep evicted entries alive
	n := copy(s.items, s.items[over:])
	var zero T
	for i := n; i < len(s.items); i++ {
		s.items[i] = zero
	}
	s.items = s.items[:n]
	return evicted
}

// Pop removes and returns the top entry.
func (s *Stack[T]) Pop() (T, bool) {
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	last := len(s.items) - 1
	item := s.items[last]
	s.items[last] = zero
	s.items = s.items[:last]
	return item, true
}

// Peek returns the top entry without removing it.
func (s *Stack[T]) Peek() (T, bool) {
	if len(s.items) == 0 {
		var zero T
		return zero, false
	}
	return s.items[len(s.items)-1], true
}

// Len returns the number of entries.
func (s *Stack[T]) Len() int {
	return len(s.items)
}

// Items returns a copy of the entries, bottom to top.
func (s *Stack[T]) Items() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Contains reports whether item is anywhere on the stack.
func (s *Stack[T]) Contains(item T) bool {
	for _, it := range s.items {
		if it == item {
			return true
		}
	}
	return false
}

// Clear empties the stack and returns what it held, bottom to top.
func (s *Stack[T]) Clear() []T {
	cleared := s.items
	s.items = nil
	return cleared
}

// Remove deletes the topmost occurrence of item and reports whether it was
// found.
func (s *Stack[T]) Remove(item T) bool {
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i] == item {
			var zero T
			copy(s.items[i:], s.items[i+1:])
			s.items[len(s.items)-1] = zero
			s.items = s.items[:len(s.items)-1]
			return true
		}
	}
	return false
}
