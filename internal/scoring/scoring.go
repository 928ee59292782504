// Package scoring implements the weighted relevance score (C6) that the
// context window uses to rescore and evict entries: a weighted sum of
// recency, importance, access frequency, and vector relevance. Search
// results are not ranked with it; they keep the store's similarity order.
package scoring

import "math"

// Weights are normalized to sum to 1; defaults match §4.6.
type Weights struct {
	Recency    float64
	Importance float64
	Access     float64
	Relevance  float64
}

// DefaultWeights returns the §4.6 default weighting.
func DefaultWeights() Weights {
	return Weights{Recency: 0.3, Importance: 0.3, Access: 0.2, Relevance: 0.2}
}

func (w Weights) normalize() Weights {
	sum := w.Recency + w.Importance + w.Access + w.Relevance
	if sum == 0 {
		return DefaultWeights()
	}
	return Weights{
		Recency:    w.Recency / sum,
		Importance: w.Importance / sum,
		Access:     w.Access / sum,
		Relevance:  w.Relevance / sum,
	}
}

// Input carries the raw signals for one memory's score.
type Input struct {
	AgeHours        float64
	Importance      float64 // [0,1]
	AccessCount     int
	PopulationCount int     // N, used to normalize access frequency
	Similarity      float64 // cosine similarity, may be negative
	Lambda          float64 // recency decay rate; 0 means use default 0.1
}

const defaultLambda = 0.1

// Recency is exp(-lambda*ageHours) clamped to [0,1].
func Recency(ageHours, lambda float64) float64 {
	if lambda <= 0 {
		lambda = defaultLambda
	}
	r := math.Exp(-lambda * ageHours)
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// AccessScore is log(count+1)/log(N+1).
func AccessScore(count, populationCount int) float64 {
	if populationCount < 1 {
		populationCount = 1
	}
	denom := math.Log(float64(populationCount) + 1)
	if denom == 0 {
		return 0
	}
	return math.Log(float64(count)+1) / denom
}

// RelevanceScore is max(0, sim)^0.7.
func RelevanceScore(sim float64) float64 {
	if sim < 0 {
		sim = 0
	}
	return math.Pow(sim, 0.7)
}

// Score computes the weighted sum score for one memory.
func Score(in Input, w Weights) float64 {
	w = w.normalize()
	lambda := in.Lambda
	if lambda <= 0 {
		lambda = defaultLambda
	}
	recency := Recency(in.AgeHours, lambda)
	access := AccessScore(in.AccessCount, in.PopulationCount)
	relevance := RelevanceScore(in.Similarity)
	return w.Recency*recency + w.Importance*in.Importance + w.Access*access + w.Relevance*relevance
}

// Signals describes which properties of a memory are "hot" for adaptWeights.
type Signals struct {
	IsRecent    bool
	IsImportant bool
	IsFrequent  bool
	IsRelevant  bool
}

// AdaptWeights multiplies the weight matching the strongest active signal by
// 1.5 (halving lambda if IsRecent), then renormalizes. Only one weight is
// boosted, in Recency/Importance/Access/Relevance priority order, matching
// the spec's "the selected weight" singular phrasing.
func AdaptWeights(w Weights, s Signals) (Weights, float64) {
	lambda := defaultLambda
	switch {
	case s.IsRecent:
		w.Recency *= 1.5
		lambda /= 2
	case s.IsImportant:
		w.Importance *= 1.5
	case s.IsFrequent:
		w.Access *= 1.5
	case s.IsRelevant:
		w.Relevance *= 1.5
	}
	return w.normalize(), lambda
}

// EstimateTokens approximates token count as ceil(chars/4).
func EstimateTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	return (len(s) + 3) / 4
}
