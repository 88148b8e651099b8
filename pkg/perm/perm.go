// Package perm provides permutation helpers used to reorder matrix axes.
//
// A permutation of length n is a slice containing each of 0..n-1 exactly once.
// Label orderings produced by clustering are converted to index permutations
// with [IndexOf] before being applied to a matrix.
package perm

import (
	"fmt"
	"slices"
)

// Seq returns a slice containing the sequence [0, 1, 2, ..., n-1].
//
// For n <= 0, Seq returns an empty slice.
func Seq(n int) []int {
	if n <= 0 {
		return []int{}
	}
	result := make([]int, n)
	for i := range result {
		result[i] = i
	}
	return result
}

// Factorial returns n! (n factorial), the product 1 × 2 × ... × n.
// For n <= 1, Factorial returns 1.
func Factorial(n int) int {
	result := 1
	for i := 2; i <= n; i++ {
		result *= i
	}
	return result
}

// Valid reports whether p is a permutation of [0, len(p)).
func Valid(p []int) bool {
	seen := make([]bool, len(p))
	for _, v := range p {
		if v < 0 || v >= len(p) || seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}

// Inverse returns q such that q[p[i]] == i.
// The caller must pass a valid permutation.
func Inverse(p []int) []int {
	q := make([]int, len(p))
	for i, v := range p {
		q[v] = i
	}
	return q
}

// Apply returns a new slice with out[i] = s[p[i]].
func Apply[T any](s []T, p []int) []T {
	out := make([]T, len(p))
	for i, v := range p {
		out[i] = s[v]
	}
	return out
}

// IndexOf converts a label ordering to an index permutation relative to
// labels. It fails if order is not a permutation of labels.
func IndexOf(labels, order []string) ([]int, error) {
	if len(order) != len(labels) {
		return nil, fmt.Errorf("ordering has %d labels, axis has %d", len(order), len(labels))
	}
	pos := make(map[string]int, len(labels))
	for i, l := range labels {
		pos[l] = i
	}
	p := make([]int, len(order))
	used := make([]bool, len(labels))
	for i, l := range order {
		j, ok := pos[l]
		if !ok {
			return nil, fmt.Errorf("unknown label %q", l)
		}
		if used[j] {
			return nil, fmt.Errorf("duplicate label %q", l)
		}
		used[j] = true
		p[i] = j
	}
	return p, nil
}

// Generate returns permutations of [0, 1, ..., n-1] using Heap's algorithm.
//
// If limit > 0, Generate returns at most limit permutations.
// If limit <= 0, Generate returns all n! permutations.
//
// Each returned slice is a separate allocation.
func Generate(n, limit int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	if n == 1 {
		return [][]int{{0}}
	}

	p := Seq(n)
	state := make([]int, n)

	capacity := limit
	if capacity <= 0 || n <= 10 {
		capacity = Factorial(min(n, 10))
	}
	result := make([][]int, 0, capacity)
	result = append(result, slices.Clone(p))

	for i := 0; i < n && (limit <= 0 || len(result) < limit); {
		if state[i] < i {
			if i&1 == 0 {
				p[0], p[i] = p[i], p[0]
			} else {
				p[state[i]], p[i] = p[i], p[state[i]]
			}
			result = append(result, slices.Clone(p))
			state[i]++
			i = 0
		} else {
			state[i] = 0
			i++
		}
	}
	return result
}
