package jobs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadQueueWeights_EmptyPathReturnsDefaults(t *testing.T) {
	weights, err := LoadQueueWeights("")
	require.NoError(t, err)
	assert.Equal(t, QueueWeights, weights)
}

func TestLoadQueueWeights_OverlayMergesOntoDefaults(t *testing.T) {
	path := writeYAML(t, "queues:\n  embedding: 6\n  decay: 5\n")
	weights, err := LoadQueueWeights(path)
	require.NoError(t, err)

	assert.Equal(t, 6, weights[QueueEmbedding])
	assert.Equal(t, 5, weights[QueueDecay])
	assert.Equal(t, QueueWeights[QueueBatchImport], weights[QueueBatchImport])
	assert.Equal(t, QueueWeights[QueueConsolidation], weights[QueueConsolidation])
	assert.Equal(t, QueueWeights[QueueClustering], weights[QueueClustering])
}

func TestLoadQueueWeights_UnknownQueueErrors(t *testing.T) {
	path := writeYAML(t, "queues:\n  bogus: 4\n")
	_, err := LoadQueueWeights(path)
	assert.ErrorContains(t, err, "unknown queue")
}

func TestLoadQueueWeights_NonPositiveWeightErrors(t *testing.T) {
	path := writeYAML(t, "queues:\n  embedding: 0\n")
	_, err := LoadQueueWeights(path)
	assert.ErrorContains(t, err, "must be positive")
}

func TestLoadQueueWeights_MissingFileErrors(t *testing.T) {
	_, err := LoadQueueWeights(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queues.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
