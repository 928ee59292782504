package vectormath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity_Identical(t *testing.T) {
	a := []float32{1, 0, 0}
	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-9)
}

func TestCosineSimilarity_Orthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.InDelta(t, 0.0, CosineSimilarity(a, b), 1e-9)
}

func TestCosineSimilarity_MismatchedLengthsOrEmpty(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 2}, []float32{1}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}

func TestCosineSimilarity_ZeroVector(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestCosineDistance_IsOneMinusSimilarity(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.InDelta(t, 1.0, CosineDistance(a, b), 1e-9)
}

func TestCentroid_Empty(t *testing.T) {
	assert.Nil(t, Centroid(nil))
}

func TestCentroid_Mean(t *testing.T) {
	vs := [][]float32{{1, 1}, {3, 3}}
	got := Centroid(vs)
	assert.InDelta(t, 2.0, float64(got[0]), 1e-6)
	assert.InDelta(t, 2.0, float64(got[1]), 1e-6)
}

func TestCoherence_FewerThanTwoIsOne(t *testing.T) {
	assert.Equal(t, 1.0, Coherence(nil))
	assert.Equal(t, 1.0, Coherence([][]float32{{1, 0}}))
}

func TestCoherence_IdenticalVectorsIsOne(t *testing.T) {
	vs := [][]float32{{1, 0}, {1, 0}, {1, 0}}
	assert.InDelta(t, 1.0, Coherence(vs), 1e-9)
}

func TestSilhouette_MismatchedOrEmptyReturnsZero(t *testing.T) {
	assert.Equal(t, 0.0, Silhouette(nil, nil))
	assert.Equal(t, 0.0, Silhouette([][]float32{{1, 0}}, []string{"a", "b"}))
}

func TestSilhouette_WellSeparatedClustersScoreHigh(t *testing.T) {
	points := [][]float32{
		{1, 0}, {0.9, 0.1},
		{0, 1}, {0.1, 0.9},
	}
	labels := []string{"a", "a", "b", "b"}
	score := Silhouette(points, labels)
	assert.Greater(t, score, 0.5)
}

func TestSilhouette_SingletonClustersSkipped(t *testing.T) {
	points := [][]float32{{1, 0}, {0, 1}, {0.5, 0.5}}
	labels := []string{"a", "b", "c"}
	assert.Equal(t, 0.0, Silhouette(points, labels))
}
