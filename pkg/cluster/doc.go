// Package cluster implements agglomerative hierarchical clustering and the
// leaf ordering used to arrange heatmap axes.
//
// The pipeline for one axis is:
//
//  1. [Pdist] computes a condensed pairwise distance vector with a named metric.
//  2. [Linkage] merges clusters bottom-up with a named linkage method and
//     returns the merge steps in scipy linkage-matrix convention.
//  3. [Tree.Leaves] reads the leaf order of the resulting tree, visiting the
//     child with the smaller merge height first so that branches never cross.
//  4. [Tree.Dendrogram] lays the same traversal out geometrically with leaves
//     LeafSpacing units apart.
//
// Metric and method names follow scipy (euclidean, cityblock, ward, average,
// ...). The ward, centroid and median methods are defined only for euclidean
// distances; other combinations fail with CLUSTERING_FAILED instead of being
// silently corrected.
//
// Reducible methods (single, complete, average, weighted, ward) use the
// nearest-neighbour chain algorithm. Centroid and median may produce
// inversions and use a direct closest-pair search.
package cluster
