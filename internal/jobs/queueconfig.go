package jobs

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// QueueWeightsOverlay is the optional on-disk shape for overriding
// QueueWeights, letting an operator retune each topic's share of worker
// concurrency without a redeploy.
type QueueWeightsOverlay struct {
	Queues map[string]int `yaml:"queues"`
}

// LoadQueueWeights reads a YAML overlay file and merges it onto a copy of
// QueueWeights, leaving any queue the file doesn't mention at its default.
// An empty path is a no-op, returning QueueWeights unchanged.
func LoadQueueWeights(path string) (map[string]int, error) {
	weights := make(map[string]int, len(QueueWeights))
	for k, v := range QueueWeights {
		weights[k] = v
	}
	if path == "" {
		return weights, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read queue config %s: %w", path, err)
	}

	var overlay QueueWeightsOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse queue config %s: %w", path, err)
	}

	for queue, weight := range overlay.Queues {
		if _, known := weights[queue]; !known {
			return nil, fmt.Errorf("queue config %s: unknown queue %q", path, queue)
		}
		if weight < 1 {
			return nil, fmt.Errorf("queue config %s: queue %q weight must be positive, got %d", path, queue, weight)
		}
		weights[queue] = weight
	}
	return weights, nil
}
