package cluster

import (
	"fmt"

	"github.com/memsvc/memory/internal/vectormath"
)

const (
	DefaultMergeThreshold    = 0.8
	DefaultMaxClusterSize    = 100
	DefaultMinCoherence      = 0.5
	splitEpsilon             = 0.2
	splitMinPoints           = 3
)

// ClusterState is the working view of a cluster's membership and vectors,
// keyed by ID, used by the maintenance passes.
type ClusterState struct {
	ID       string
	MemberID []string
	Vectors  [][]float32
}

// MergeSimilarClusters compares every pair of cluster centroids; when
// cosine similarity is at least threshold, the second cluster's members are
// reassigned into the first. Returns the surviving clusters and a map of
// absorbed-cluster-id -> surviving-cluster-id for callers to persist.
func MergeSimilarClusters(clusters []ClusterState, threshold float64) ([]ClusterState, map[string]string) {
	if threshold <= 0 {
		threshold = DefaultMergeThreshold
	}

	centroids := make([][]float32, len(clusters))
	for i, c := range clusters {
		centroids[i] = vectormath.Centroid(c.Vectors)
	}

	absorbedInto := map[string]string{}
	alive := make([]bool, len(clusters))
	for i := range alive {
		alive[i] = true
	}

	for i := 0; i < len(clusters); i++ {
		if !alive[i] {
			continue
		}
		for j := i + 1; j < len(clusters); j++ {
			if !alive[j] {
				continue
			}
			if vectormath.CosineSimilarity(centroids[i], centroids[j]) >= threshold {
				clusters[i].MemberID = append(clusters[i].MemberID, clusters[j].MemberID...)
				clusters[i].Vectors = append(clusters[i].Vectors, clusters[j].Vectors...)
				centroids[i] = vectormath.Centroid(clusters[i].Vectors)
				absorbedInto[clusters[j].ID] = clusters[i].ID
				alive[j] = false
			}
		}
	}

	var out []ClusterState
	for i, c := range clusters {
		if alive[i] {
			out = append(out, c)
		}
	}
	return out, absorbedInto
}

// SplitLargeClusters re-runs DBSCAN with a tighter epsilon on every cluster
// larger than maxSize whose coherence is below minCoherence. Sub-cluster IDs
// are derived from the parent as "<parentID>-<i*1000+k>", where i is the
// parent's index in clusters and k numbers its sub-clusters from 1.
func SplitLargeClusters(clusters []ClusterState, maxSize int, minCoherence float64) []ClusterState {
	if maxSize <= 0 {
		maxSize = DefaultMaxClusterSize
	}
	if minCoherence <= 0 {
		minCoherence = DefaultMinCoherence
	}

	var out []ClusterState
	for parentIdx, c := range clusters {
		if len(c.MemberID) <= maxSize || vectormath.Coherence(c.Vectors) >= minCoherence {
			out = append(out, c)
			continue
		}

		points := make([]Point, len(c.MemberID))
		for i, id := range c.MemberID {
			points[i] = Point{ID: id, Embedding: c.Vectors[i]}
		}
		sub := DBSCAN(points, splitEpsilon, splitMinPoints, DefaultMinClusterSize)

		k := 0
		for _, members := range sub.Assignments {
			k++
			subID := fmt.Sprintf("%s-%d", c.ID, parentIdx*1000+k)
			var vecs [][]float32
			byID := map[string][]float32{}
			for i, id := range c.MemberID {
				byID[id] = c.Vectors[i]
			}
			for _, m := range members {
				vecs = append(vecs, byID[m])
			}
			out = append(out, ClusterState{ID: subID, MemberID: members, Vectors: vecs})
		}
		if k == 0 {
			// No sub-cluster survived minClusterSize; keep the parent intact
			// rather than silently dropping its members.
			out = append(out, c)
		}
	}
	return out
}
