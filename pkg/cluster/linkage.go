package cluster

import (
	"math"
	"sort"

	"github.com/matzehuels/clustermap/pkg/errors"
)

// Linkage method names.
const (
	MethodSingle   = "single"
	MethodComplete = "complete"
	MethodAverage  = "average"
	MethodWeighted = "weighted"
	MethodWard     = "ward"
	MethodCentroid = "centroid"
	MethodMedian   = "median"
)

// DefaultMaxLeaves bounds the number of items a single linkage call accepts.
// Linkage is quadratic in memory and at least quadratic in time.
const DefaultMaxLeaves = 5000

// updateFunc is a Lance–Williams update: the distance from the merge of
// clusters x and y to cluster i, given d(i,x), d(i,y), d(x,y) and sizes.
type updateFunc func(dix, diy, dxy, nx, ny, ni float64) float64

type method struct {
	update updateFunc
	// reducible methods can use the nearest-neighbour chain
	reducible bool
	// euclidean methods are only meaningful on euclidean distances
	euclidean bool
}

var methods = map[string]method{
	MethodSingle: {
		update:    func(dix, diy, _, _, _, _ float64) float64 { return math.Min(dix, diy) },
		reducible: true,
	},
	MethodComplete: {
		update:    func(dix, diy, _, _, _, _ float64) float64 { return math.Max(dix, diy) },
		reducible: true,
	},
	MethodAverage: {
		update: func(dix, diy, _, nx, ny, _ float64) float64 {
			return (nx*dix + ny*diy) / (nx + ny)
		},
		reducible: true,
	},
	MethodWeighted: {
		update:    func(dix, diy, _, _, _, _ float64) float64 { return 0.5 * (dix + diy) },
		reducible: true,
	},
	MethodWard: {
		update: func(dix, diy, dxy, nx, ny, ni float64) float64 {
			t := 1 / (nx + ny + ni)
			return math.Sqrt((ni+nx)*t*dix*dix + (ni+ny)*t*diy*diy - ni*t*dxy*dxy)
		},
		reducible: true,
		euclidean: true,
	},
	MethodCentroid: {
		update: func(dix, diy, dxy, nx, ny, _ float64) float64 {
			s := nx + ny
			v := (nx*dix*dix+ny*diy*diy)/s - nx*ny*dxy*dxy/(s*s)
			return math.Sqrt(math.Max(v, 0))
		},
		euclidean: true,
	},
	MethodMedian: {
		update: func(dix, diy, dxy, _, _, _ float64) float64 {
			v := 0.5*dix*dix + 0.5*diy*diy - 0.25*dxy*dxy
			return math.Sqrt(math.Max(v, 0))
		},
		euclidean: true,
	},
}

// MethodNames returns the registered linkage method names in sorted order.
func MethodNames() []string {
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckCombination reports whether metric and method can be used together.
func CheckCombination(metric, methodName string) error {
	if _, ok := Metrics[metric]; !ok {
		return errors.New(errors.ErrCodeClusteringFailed, "unknown distance metric %q", metric)
	}
	m, ok := methods[methodName]
	if !ok {
		return errors.New(errors.ErrCodeClusteringFailed, "unknown linkage method %q", methodName)
	}
	if m.euclidean && metric != MetricEuclidean {
		return errors.New(errors.ErrCodeClusteringFailed,
			"linkage method %q requires the euclidean metric, got %q", methodName, metric)
	}
	return nil
}

// Link is one merge step in scipy linkage-matrix convention. Leaves are
// numbered 0..n-1 and the cluster formed by link k is numbered n+k.
// A is always the smaller of the two merged ids.
type Link struct {
	A        int     `json:"a"`
	B        int     `json:"b"`
	Distance float64 `json:"distance"`
	Size     int     `json:"size"`
}

// Linkage builds the agglomerative cluster tree over n items from a
// condensed distance vector. It returns n-1 links.
func Linkage(dist []float64, n int, methodName string) ([]Link, error) {
	m, ok := methods[methodName]
	if !ok {
		return nil, errors.New(errors.ErrCodeClusteringFailed, "unknown linkage method %q", methodName)
	}
	if want := n * (n - 1) / 2; len(dist) != want {
		return nil, errors.New(errors.ErrCodeClusteringFailed,
			"condensed matrix has %d entries, want %d for %d items", len(dist), want, n)
	}
	for _, d := range dist {
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return nil, errors.New(errors.ErrCodeClusteringFailed,
				"distance matrix must contain only finite values")
		}
	}
	if n < 2 {
		return nil, nil
	}

	d := make([]float64, len(dist))
	copy(d, dist)
	if m.reducible {
		return nnChain(d, n, m.update)
	}
	return generic(d, n, m.update)
}

// nnChain follows nearest-neighbour chains until a reciprocal pair is found
// and merges it. Merges come out of order, so the result is sorted by
// distance and relabelled afterwards.
func nnChain(d []float64, n int, update updateFunc) ([]Link, error) {
	size := make([]int, n)
	for i := range size {
		size[i] = 1
	}
	chain := make([]int, 0, n)
	links := make([]Link, 0, n-1)

	for k := 0; k < n-1; k++ {
		if len(chain) == 0 {
			for i := 0; i < n; i++ {
				if size[i] > 0 {
					chain = append(chain, i)
					break
				}
			}
		}

		var x, y int
		var best float64
		for {
			x = chain[len(chain)-1]
			y = -1
			best = math.Inf(1)
			if len(chain) > 1 {
				y = chain[len(chain)-2]
				best = d[CondensedIndex(n, x, y)]
			}
			for i := 0; i < n; i++ {
				if size[i] == 0 || i == x {
					continue
				}
				if di := d[CondensedIndex(n, x, i)]; di < best {
					best = di
					y = i
				}
			}
			if y < 0 {
				return nil, errors.New(errors.ErrCodeClusteringFailed, "no finite nearest neighbour for item %d", x)
			}
			if len(chain) > 1 && y == chain[len(chain)-2] {
				break
			}
			chain = append(chain, y)
		}
		chain = chain[:len(chain)-2]

		if x > y {
			x, y = y, x
		}
		nx, ny := size[x], size[y]
		links = append(links, Link{A: x, B: y, Distance: best, Size: nx + ny})
		size[x] = 0
		size[y] = nx + ny

		for i := 0; i < n; i++ {
			ni := size[i]
			if ni == 0 || i == y {
				continue
			}
			iy := CondensedIndex(n, i, y)
			d[iy] = update(d[CondensedIndex(n, i, x)], d[iy], best, float64(nx), float64(ny), float64(ni))
		}
	}

	sort.SliceStable(links, func(a, b int) bool {
		return links[a].Distance < links[b].Distance
	})
	relabel(links, n)
	return links, nil
}

// relabel rewrites slot indices produced by nnChain into cluster ids.
func relabel(links []Link, n int) {
	parent := make([]int, 2*n-1)
	size := make([]int, 2*n-1)
	for i := range parent {
		parent[i] = i
		size[i] = 1
	}
	find := func(x int) int {
		root := x
		for parent[root] != root {
			root = parent[root]
		}
		for parent[x] != root {
			parent[x], x = root, parent[x]
		}
		return root
	}

	next := n
	for i := range links {
		xr, yr := find(links[i].A), find(links[i].B)
		if xr > yr {
			xr, yr = yr, xr
		}
		links[i].A, links[i].B = xr, yr
		parent[xr], parent[yr] = next, next
		size[next] = size[xr] + size[yr]
		links[i].Size = size[next]
		next++
	}
}

// generic repeatedly merges the globally closest pair. It is used for the
// non-reducible methods, where merge heights can decrease.
func generic(d []float64, n int, update updateFunc) ([]Link, error) {
	size := make([]int, n)
	id := make([]int, n)
	for i := range size {
		size[i] = 1
		id[i] = i
	}
	links := make([]Link, 0, n-1)

	for k := 0; k < n-1; k++ {
		x, y := -1, -1
		best := math.Inf(1)
		for i := 0; i < n; i++ {
			if size[i] == 0 {
				continue
			}
			for j := i + 1; j < n; j++ {
				if size[j] == 0 {
					continue
				}
				if dij := d[CondensedIndex(n, i, j)]; dij < best {
					best = dij
					x, y = i, j
				}
			}
		}
		if x < 0 {
			return nil, errors.New(errors.ErrCodeClusteringFailed, "no finite pair left to merge")
		}

		nx, ny := size[x], size[y]
		a, b := id[x], id[y]
		if a > b {
			a, b = b, a
		}
		links = append(links, Link{A: a, B: b, Distance: best, Size: nx + ny})

		for i := 0; i < n; i++ {
			ni := size[i]
			if ni == 0 || i == x || i == y {
				continue
			}
			iy := CondensedIndex(n, i, y)
			d[iy] = update(d[CondensedIndex(n, i, x)], d[iy], best, float64(nx), float64(ny), float64(ni))
		}
		size[x] = 0
		size[y] = nx + ny
		id[y] = n + k
	}
	return links, nil
}
