package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultWeights_SumToOne(t *testing.T) {
	w := DefaultWeights()
	assert.InDelta(t, 1.0, w.Recency+w.Importance+w.Access+w.Relevance, 1e-9)
}

func TestRecency_ZeroAgeIsOne(t *testing.T) {
	assert.InDelta(t, 1.0, Recency(0, 0.1), 1e-9)
}

func TestRecency_DecaysWithAge(t *testing.T) {
	r1 := Recency(1, 0.1)
	r2 := Recency(100, 0.1)
	assert.Greater(t, r1, r2)
	assert.GreaterOrEqual(t, r2, 0.0)
}

func TestRecency_NonPositiveLambdaUsesDefault(t *testing.T) {
	assert.Equal(t, Recency(10, 0), Recency(10, defaultLambda))
}

func TestAccessScore_ZeroCountIsZero(t *testing.T) {
	assert.Equal(t, 0.0, AccessScore(0, 100))
}

func TestAccessScore_MonotonicInCount(t *testing.T) {
	assert.Less(t, AccessScore(1, 100), AccessScore(10, 100))
}

func TestRelevanceScore_NegativeClampedToZero(t *testing.T) {
	assert.Equal(t, 0.0, RelevanceScore(-0.5))
}

func TestRelevanceScore_OneStaysOne(t *testing.T) {
	assert.InDelta(t, 1.0, RelevanceScore(1.0), 1e-9)
}

func TestScore_HigherSimilarityScoresHigher(t *testing.T) {
	w := DefaultWeights()
	low := Score(Input{AgeHours: 1, Importance: 0.5, AccessCount: 1, PopulationCount: 10, Similarity: 0.1}, w)
	high := Score(Input{AgeHours: 1, Importance: 0.5, AccessCount: 1, PopulationCount: 10, Similarity: 0.9}, w)
	assert.Greater(t, high, low)
}

func TestScore_ZeroWeightsFallsBackToDefaults(t *testing.T) {
	in := Input{AgeHours: 1, Importance: 0.5, AccessCount: 1, PopulationCount: 10, Similarity: 0.5}
	assert.Equal(t, Score(in, Weights{}), Score(in, DefaultWeights()))
}

func TestAdaptWeights_RecentBoostsRecencyAndHalvesLambda(t *testing.T) {
	w, lambda := AdaptWeights(DefaultWeights(), Signals{IsRecent: true})
	assert.InDelta(t, defaultLambda/2, lambda, 1e-9)
	assert.InDelta(t, 1.0, w.Recency+w.Importance+w.Access+w.Relevance, 1e-9)
	assert.Greater(t, w.Recency, DefaultWeights().Recency)
}

func TestAdaptWeights_PriorityOrderOnlyBoostsFirstActiveSignal(t *testing.T) {
	w, _ := AdaptWeights(DefaultWeights(), Signals{IsImportant: true, IsFrequent: true})
	base := DefaultWeights()
	assert.Greater(t, w.Importance/base.Importance, w.Access/base.Access)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
}
