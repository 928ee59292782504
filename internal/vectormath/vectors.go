// Package vectormath implements the vector-distance primitives (C1) that
// the store, scoring, and clustering components build on: cosine
// distance/similarity, centroid, coherence, and silhouette.
package vectormath

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// CosineSimilarity returns the cosine similarity of a and b, in [-1, 1].
// Mismatched lengths or a zero vector yield 0 similarity (distance 1).
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	fa, fb := toFloat64(a), toFloat64(b)
	dot := floats.Dot(fa, fb)
	normA := math.Sqrt(floats.Dot(fa, fa))
	normB := math.Sqrt(floats.Dot(fb, fb))
	denom := normA * normB
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// CosineDistance is 1 - CosineSimilarity, per §4.1: when either norm is 0,
// distance is 1 (CosineSimilarity already returns 0 in that case).
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}

// Centroid is the arithmetic mean per dimension across vs. Returns nil for
// an empty input.
func Centroid(vs [][]float32) []float32 {
	if len(vs) == 0 {
		return nil
	}
	dim := len(vs[0])
	sum := make([]float64, dim)
	for _, v := range vs {
		for i, x := range v {
			if i < dim {
				sum[i] += float64(x)
			}
		}
	}
	out := make([]float32, dim)
	n := float64(len(vs))
	for i, s := range sum {
		out[i] = float32(s / n)
	}
	return out
}

// Coherence is the mean of pairwise cosine similarity across vs. For fewer
// than 2 vectors, coherence is defined as 1.
func Coherence(vs [][]float32) float64 {
	if len(vs) < 2 {
		return 1
	}
	var sum float64
	var count int
	for i := 0; i < len(vs); i++ {
		for j := i + 1; j < len(vs); j++ {
			sum += CosineSimilarity(vs[i], vs[j])
			count++
		}
	}
	if count == 0 {
		return 1
	}
	return sum / float64(count)
}

// Silhouette computes the per-point silhouette coefficient for each member
// of `points`, given a parallel `labels` slice (cluster assignment) and the
// full set of clustered points needed to compute inter-cluster distances.
// Points whose cluster has fewer than 2 members are skipped (per §4.1, the
// average is taken only over points assigned to a cluster with >=2 members).
// Returns the mean silhouette across the qualifying points, or 0 if none qualify.
func Silhouette(points [][]float32, labels []string) float64 {
	if len(points) != len(labels) || len(points) == 0 {
		return 0
	}
	byCluster := map[string][]int{}
	for i, l := range labels {
		byCluster[l] = append(byCluster[l], i)
	}

	var total float64
	var n int
	for i := range points {
		members := byCluster[labels[i]]
		if len(members) < 2 {
			continue
		}
		a := meanDistanceTo(points[i], points, members, i)

		b := math.Inf(1)
		for otherLabel, otherMembers := range byCluster {
			if otherLabel == labels[i] {
				continue
			}
			d := meanDistanceTo(points[i], points, otherMembers, -1)
			if d < b {
				b = d
			}
		}
		if math.IsInf(b, 1) {
			continue
		}
		m := math.Max(a, b)
		if m == 0 {
			continue
		}
		total += (b - a) / m
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func meanDistanceTo(p []float32, points [][]float32, members []int, exclude int) float64 {
	var sum float64
	var count int
	for _, idx := range members {
		if idx == exclude {
			continue
		}
		sum += CosineDistance(p, points[idx])
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
