package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func denseCluster(prefix string, base []float32, n int) []Point {
	pts := make([]Point, n)
	for i := 0; i < n; i++ {
		v := append([]float32{}, base...)
		v[0] += float32(i) * 0.001
		pts[i] = Point{ID: prefix + string(rune('a'+i)), Embedding: v}
	}
	return pts
}

func TestDBSCAN_FindsTwoSeparatedClusters(t *testing.T) {
	a := denseCluster("a", []float32{1, 0, 0}, 3)
	b := denseCluster("b", []float32{0, 1, 0}, 3)
	points := append(append([]Point{}, a...), b...)

	result := DBSCAN(points, DefaultEpsilon, DefaultMinPoints, DefaultMinClusterSize)

	assert.Len(t, result.Assignments, 2)
	for _, members := range result.Assignments {
		assert.Len(t, members, 3)
	}
}

func TestDBSCAN_SparsePointsAreNoise(t *testing.T) {
	points := []Point{
		{ID: "1", Embedding: []float32{1, 0, 0}},
		{ID: "2", Embedding: []float32{0, 1, 0}},
		{ID: "3", Embedding: []float32{0, 0, 1}},
	}
	result := DBSCAN(points, DefaultEpsilon, DefaultMinPoints, DefaultMinClusterSize)
	assert.Empty(t, result.Assignments)
	assert.Empty(t, result.PointLabel)
}

func TestDBSCAN_ClusterBelowMinSizeIsDropped(t *testing.T) {
	a := denseCluster("a", []float32{1, 0, 0}, 2)
	result := DBSCAN(a, DefaultEpsilon, 2, 3)
	assert.Empty(t, result.Assignments)
}

func TestDBSCAN_InvalidParamsFallBackToDefaults(t *testing.T) {
	a := denseCluster("a", []float32{1, 0, 0}, 3)
	r1 := DBSCAN(a, 0, 0, 0)
	r2 := DBSCAN(a, DefaultEpsilon, DefaultMinPoints, DefaultMinClusterSize)
	assert.Equal(t, r2, r1)
}

func TestIncremental_OnlyReportsNewIDs(t *testing.T) {
	existing := denseCluster("e", []float32{1, 0, 0}, 3)
	newPts := denseCluster("n", []float32{1, 0, 0}, 2)
	newIDs := map[string]bool{}
	for _, p := range newPts {
		newIDs[p.ID] = true
	}

	result := Incremental(existing, newPts, DefaultEpsilon, DefaultMinPoints, DefaultMinClusterSize, newIDs)

	for _, members := range result.Assignments {
		for _, m := range members {
			assert.True(t, newIDs[m], "unexpected existing member %q leaked into filtered result", m)
		}
	}
	totalNew := 0
	for _, members := range result.Assignments {
		totalNew += len(members)
	}
	assert.Equal(t, len(newPts), totalNew)
}
