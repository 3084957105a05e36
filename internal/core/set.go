package core

import "sort"

// Set is an unordered collection of comparable values with JSON-friendly
// map representation.
type Set[T comparable] map[T]bool

func NewSet[T comparable](vs ...T) Set[T] {
	s := make(Set[T], len(vs))
	for _, v := range vs {
		s[v] = true
	}
	return s
}

func (s Set[T]) Add(v T) bool {
	if s[v] {
		return false
	}
	s[v] = true
	return true
}

func (s Set[T]) Remove(v T) bool {
	if !s[v] {
		return false
	}
	delete(s, v)
	return true
}

func (s Set[T]) Contains(v T) bool {
	return s[v]
}

func (s Set[T]) Slice() []T {
	vs := make([]T, 0, len(s))
	for v := range s {
		vs = append(vs, v)
	}
	return vs
}

func (s Set[T]) Clone() Set[T] {
	c := make(Set[T], len(s))
	for v := range s {
		c[v] = true
	}
	return c
}

// SortedStrings returns the members of a string set in ascending order.
// Used where deterministic output matters (logs, CLI listings).
func SortedStrings(s Set[string]) []string {
	vs := s.Slice()
	sort.Strings(vs)
	return vs
}
