// Package cluster implements memory consolidation (C7): DBSCAN over
// embeddings, incremental re-clustering, and cluster maintenance
// (merge/split).
package cluster

import (
	"fmt"

	"github.com/memsvc/memory/internal/vectormath"
)

const (
	DefaultEpsilon       = 0.3
	DefaultMinPoints     = 3
	DefaultMinClusterSize = 2
)

// Point is one clustering input: an opaque ID and its embedding.
type Point struct {
	ID        string
	Embedding []float32
}

// noise is the sentinel cluster ID for unassigned points; never returned in
// Assignments.
const noise = ""

// Result is a DBSCAN pass: memberIDs are reported per cluster, noise points
// are omitted entirely (per §4.7, unassigned points are noise and are not a
// cluster).
type Result struct {
	Assignments map[string][]string // clusterId -> member IDs
	PointLabel  map[string]string   // point ID -> clusterId (empty for noise)
}

// DBSCAN clusters points by cosine distance with the given epsilon and
// minPoints, discarding clusters below minClusterSize.
func DBSCAN(points []Point, epsilon float64, minPoints, minClusterSize int) Result {
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}
	if minPoints <= 0 {
		minPoints = DefaultMinPoints
	}
	if minClusterSize <= 0 {
		minClusterSize = DefaultMinClusterSize
	}

	n := len(points)
	visited := make([]bool, n)
	labels := make([]int, n) // -1 = noise, 0 = unassigned, >0 = cluster index
	clusterID := 0

	neighbors := func(i int) []int {
		var out []int
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if vectormath.CosineDistance(points[i].Embedding, points[j].Embedding) <= epsilon {
				out = append(out, j)
			}
		}
		return out
	}

	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true

		neigh := neighbors(i)
		if len(neigh)+1 < minPoints {
			labels[i] = -1
			continue
		}

		clusterID++
		labels[i] = clusterID
		seeds := append([]int{}, neigh...)

		for k := 0; k < len(seeds); k++ {
			j := seeds[k]
			if !visited[j] {
				visited[j] = true
				jNeigh := neighbors(j)
				if len(jNeigh)+1 >= minPoints {
					seeds = append(seeds, jNeigh...)
				}
			}
			if labels[j] <= 0 {
				labels[j] = clusterID
			}
		}
	}

	byCluster := map[int][]string{}
	for i, l := range labels {
		if l > 0 {
			byCluster[l] = append(byCluster[l], points[i].ID)
		}
	}

	result := Result{Assignments: map[string][]string{}, PointLabel: map[string]string{}}
	for id, members := range byCluster {
		if len(members) < minClusterSize {
			continue
		}
		name := fmt.Sprintf("cluster-%d", id)
		result.Assignments[name] = members
		for _, m := range members {
			result.PointLabel[m] = name
		}
	}
	return result
}

// Incremental re-clusters existing ∪ new, reconstructing existing cluster
// assignments as fixed labels is not possible with plain DBSCAN (density
// connectivity can merge or split prior clusters), so per §4.7 it simply
// re-runs DBSCAN over the full set; callers persist only the assignments for
// points in `newIDs`.
func Incremental(existing, newPoints []Point, epsilon float64, minPoints, minClusterSize int, newIDs map[string]bool) Result {
	all := append(append([]Point{}, existing...), newPoints...)
	full := DBSCAN(all, epsilon, minPoints, minClusterSize)

	filtered := Result{Assignments: map[string][]string{}, PointLabel: map[string]string{}}
	for cid, members := range full.Assignments {
		var kept []string
		for _, m := range members {
			if newIDs[m] {
				kept = append(kept, m)
				filtered.PointLabel[m] = cid
			}
		}
		if len(kept) > 0 {
			filtered.Assignments[cid] = kept
		}
	}
	return filtered
}
