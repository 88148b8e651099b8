package cluster

import (
	"fmt"
)

// LeafSpacing is the distance between adjacent leaves in dendrogram
// coordinates. Leaf k sits at LeafOffset + k*LeafSpacing.
const (
	LeafSpacing = 10.0
	LeafOffset  = 5.0
)

// Tree is a labelled cluster tree.
type Tree struct {
	Labels []string `json:"labels"`
	Links  []Link   `json:"links"`
}

// NewTree validates links against labels.
func NewTree(labels []string, links []Link) (*Tree, error) {
	n := len(labels)
	if n == 0 {
		return nil, fmt.Errorf("tree needs at least one leaf")
	}
	if len(links) != n-1 {
		return nil, fmt.Errorf("tree over %d leaves needs %d links, got %d", n, n-1, len(links))
	}
	for k, l := range links {
		if l.A < 0 || l.B < 0 || l.A >= n+k || l.B >= n+k {
			return nil, fmt.Errorf("link %d references unknown cluster (%d, %d)", k, l.A, l.B)
		}
	}
	return &Tree{Labels: labels, Links: links}, nil
}

// N returns the number of leaves.
func (t *Tree) N() int { return len(t.Labels) }

// Root is the id of the top cluster.
func (t *Tree) Root() int { return 2*t.N() - 2 }

// height returns the merge distance of cluster c, zero for a leaf.
func (t *Tree) height(c int) float64 {
	if c < t.N() {
		return 0
	}
	return t.Links[c-t.N()].Distance
}

// children returns the two children of cluster c, the lower one first.
// Leaves sort before clusters of equal height.
func (t *Tree) children(c int) (int, int) {
	l := t.Links[c-t.N()]
	a, b := l.A, l.B
	if t.height(a) > t.height(b) {
		a, b = b, a
	}
	return a, b
}

// LeafOrder returns leaf indices in the order they appear when the tree is
// drawn without crossing branches, visiting the child with the smaller merge
// height first.
func (t *Tree) LeafOrder() []int {
	n := t.N()
	if n == 1 {
		return []int{0}
	}
	order := make([]int, 0, n)
	stack := []int{t.Root()}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if c < n {
			order = append(order, c)
			continue
		}
		a, b := t.children(c)
		stack = append(stack, b, a)
	}
	return order
}

// Leaves returns the labels in leaf order.
func (t *Tree) Leaves() []string {
	order := t.LeafOrder()
	out := make([]string, len(order))
	for i, idx := range order {
		out[i] = t.Labels[idx]
	}
	return out
}

// Segment is one U-shaped connector of a dendrogram. X holds the leaf-axis
// coordinates of its four points and Y the matching heights:
// (X[0],Y[0]) bottom of the left leg, (X[1],Y[1]) top left,
// (X[2],Y[2]) top right, (X[3],Y[3]) bottom of the right leg.
type Segment struct {
	X [4]float64 `json:"x"`
	Y [4]float64 `json:"y"`
}

// Dendrogram is the drawable geometry of a tree.
type Dendrogram struct {
	// Leaves are the labels in drawing order.
	Leaves []string `json:"leaves"`
	// Positions are the leaf-axis coordinates of Leaves.
	Positions []float64 `json:"positions"`
	// Segments are emitted children-first.
	Segments []Segment `json:"segments"`
	// MaxHeight is the largest merge distance.
	MaxHeight float64 `json:"max_height"`
}

// Dendrogram lays the tree out on the leaf axis with LeafSpacing between
// leaves. Its Leaves always equal t.Leaves().
func (t *Tree) Dendrogram() Dendrogram {
	n := t.N()
	dg := Dendrogram{
		Leaves:    make([]string, 0, n),
		Positions: make([]float64, 0, n),
		Segments:  make([]Segment, 0, max(n-1, 0)),
	}
	if n == 1 {
		dg.Leaves = append(dg.Leaves, t.Labels[0])
		dg.Positions = append(dg.Positions, LeafOffset)
		return dg
	}

	var walk func(c int) (x, h float64)
	walk = func(c int) (float64, float64) {
		if c < n {
			x := LeafOffset + LeafSpacing*float64(len(dg.Leaves))
			dg.Leaves = append(dg.Leaves, t.Labels[c])
			dg.Positions = append(dg.Positions, x)
			return x, 0
		}
		a, b := t.children(c)
		xa, ha := walk(a)
		xb, hb := walk(b)
		h := t.height(c)
		dg.Segments = append(dg.Segments, Segment{
			X: [4]float64{xa, xa, xb, xb},
			Y: [4]float64{ha, h, h, hb},
		})
		return (xa + xb) / 2, h
	}
	walk(t.Root())
	// centroid and median trees can have inversions, so the root is not
	// necessarily the highest merge
	for _, l := range t.Links {
		dg.MaxHeight = max(dg.MaxHeight, l.Distance)
	}
	return dg
}
