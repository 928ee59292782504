// Package lifecycle implements the decay engine (C10): the exponential
// decay score, state mapping, transition side effects, batch processing,
// preservation, and retention cleanup.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/memsvc/memory/internal/compression"
	"github.com/memsvc/memory/internal/models"
	"github.com/memsvc/memory/internal/store"
)

// DefaultPreservationTags is substituted when a caller provides none.
var DefaultPreservationTags = []string{"permanent", "important", "bookmark", "favorite", "pinned", "preserved"}

// Config holds the decay engine's tunable constants (spec §4.10, §6.4).
type Config struct {
	BaseDecayRate      float64
	AccessBoost        float64
	RelationshipBoost  float64
	PreservationTags   []string
	RetentionDays      int
	RetentionBatchSize int
}

func DefaultConfig() Config {
	return Config{
		BaseDecayRate:      0.01,
		AccessBoost:        0.1,
		RelationshipBoost:  0.05,
		PreservationTags:   DefaultPreservationTags,
		RetentionDays:      30,
		RetentionBatchSize: 100,
	}
}

// Manager drives the decay engine over the store.
type Manager struct {
	memories  *store.MemoryStore
	relations *store.RelationStore
	cfg       Config
	logger    *slog.Logger
}

func NewManager(memories *store.MemoryStore, relations *store.RelationStore, cfg Config, logger *slog.Logger) *Manager {
	return &Manager{memories: memories, relations: relations, cfg: cfg, logger: logger}
}

// PreservationTags returns the configured preservation tag set, used by
// callers outside this package (the decay-status tool) that need to
// evaluate IsPreserved against the same configuration this Manager uses.
func (m *Manager) PreservationTags() []string { return m.cfg.PreservationTags }

// Score computes the decay score for m given its current degree (relation
// count), per §4.10's formula.
func Score(m *models.Memory, cfg Config, degree int) float64 {
	anchor := m.AccessedAt
	if anchor.IsZero() {
		anchor = m.CreatedAt
	}
	dDays := time.Since(anchor).Hours() / 24

	lambda := m.DecayRate
	if lambda <= 0 {
		lambda = cfg.BaseDecayRate
	}

	base := m.ImportanceScore * math.Exp(-lambda*dDays)
	score := base + cfg.AccessBoost*math.Log(1+float64(m.AccessCount))
	score *= m.Confidence

	if cfg.RelationshipBoost > 0 {
		score += cfg.RelationshipBoost * math.Log(1+float64(degree))
	}

	if IsPreserved(m, cfg.PreservationTags) {
		score = math.Max(score, 0.95)
	}

	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// IsPreserved reports whether m carries a preservation tag (case
// insensitive) whose preservedUntil, if any, has not yet passed.
func IsPreserved(m *models.Memory, tags []string) bool {
	if len(tags) == 0 {
		tags = DefaultPreservationTags
	}
	wanted := map[string]bool{}
	for _, t := range tags {
		wanted[strings.ToLower(t)] = true
	}

	hasTag := false
	for _, t := range m.Tags {
		if wanted[strings.ToLower(t)] {
			hasTag = true
			break
		}
	}
	if !hasTag {
		return false
	}

	if m.Metadata == nil {
		return true
	}
	raw, ok := m.Metadata["preservedUntil"]
	if !ok {
		return true
	}
	until, ok := parseTime(raw)
	if !ok {
		return true
	}
	return time.Now().Before(until)
}

func parseTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// StateFor maps a decay score to its lifecycle state.
func StateFor(score float64) models.MemoryState {
	switch {
	case score >= 0.5:
		return models.StateActive
	case score >= 0.1:
		return models.StateDormant
	case score >= 0.01:
		return models.StateArchived
	default:
		return models.StateExpired
	}
}

// BatchResult is processBatch's outcome.
type BatchResult struct {
	Processed    int
	Transitioned int
	Errors       int
}

// ProcessBatch recomputes decay score and state for up to size stale
// memories in userContext, applying transition side effects.
func (m *Manager) ProcessBatch(ctx context.Context, userContext string, size int) (BatchResult, error) {
	var result BatchResult

	candidates, err := m.memories.ForDecayScan(ctx, size)
	if err != nil {
		return result, fmt.Errorf("decay scan: %w", err)
	}

	cutoff := time.Now().Add(-time.Hour)
	for _, mem := range candidates {
		if mem.UserContext != userContext {
			continue
		}
		if mem.LastDecayUpdate.After(cutoff) {
			continue
		}
		result.Processed++

		degree := 0
		if neighbors, err := m.relations.Neighbors(ctx, mem.ID); err != nil {
			m.logger.Warn("degree lookup failed during decay", "memory_id", mem.ID, "error", err)
		} else {
			degree = len(neighbors)
		}

		newScore := Score(mem, m.cfg, degree)
		newState := StateFor(newScore)

		if err := m.applyTransition(ctx, mem, newScore, newState); err != nil {
			m.logger.Error("decay transition failed", "memory_id", mem.ID, "error", err)
			result.Errors++
			continue
		}
		if newState != mem.State {
			result.Transitioned++
		}
	}

	return result, nil
}

func (m *Manager) applyTransition(ctx context.Context, mem *models.Memory, newScore float64, newState models.MemoryState) error {
	metadata := mem.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	if newState != mem.State {
		transitions, _ := metadata["transitions"].([]any)
		transitions = append(transitions, models.Transition{From: mem.State, To: newState, Timestamp: time.Now()})
		metadata["transitions"] = transitions
	}

	fields := store.UpdateFields{
		DecayScore: &newScore,
		State:      &newState,
		Metadata:   metadata,
	}

	if newState == models.StateArchived && mem.State != models.StateArchived && !mem.IsCompressed {
		applyCompression(mem, &fields, metadata)
	}

	if err := m.memories.Update(ctx, mem.ID, fields); err != nil {
		return err
	}

	if newState == models.StateExpired && mem.State != models.StateExpired {
		if err := m.memories.SoftDelete(ctx, mem.ID); err != nil {
			return err
		}
	}
	return nil
}

func applyCompression(mem *models.Memory, fields *store.UpdateFields, metadata map[string]any) {
	text := contentAsText(mem.Content)
	result := compression.Compress(text, mem.Type, compression.DefaultTargetRatio)
	compressed := true
	metadata["originalSize"] = result.OriginalSize
	metadata["compressedSize"] = result.CompressedSize
	metadata["compressionRatio"] = result.CompressionRatio
	metadata["compressionType"] = "adaptive"
	var content any = map[string]any{"text": result.Text}
	fields.Content = &content
	fields.IsCompressed = &compressed
}

// CompressInPlace compresses a memory's content without changing its state
// or decay score, used by the consolidation "summarize" strategy to shrink
// clustered memories that lifecycle decay has not yet archived.
func (m *Manager) CompressInPlace(ctx context.Context, mem *models.Memory) error {
	metadata := mem.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	fields := store.UpdateFields{Metadata: metadata}
	applyCompression(mem, &fields, metadata)
	return m.memories.Update(ctx, mem.ID, fields)
}

func contentAsText(content any) string {
	if s, ok := content.(string); ok {
		return s
	}
	if m, ok := content.(map[string]any); ok {
		if t, ok := m["text"].(string); ok {
			return t
		}
	}
	return fmt.Sprintf("%v", content)
}

// PreserveMemory marks m preserved: decay_score=1.0, state=active, appends
// the "preserved" tag if absent, and records preservedUntil when given.
func (m *Manager) PreserveMemory(ctx context.Context, id string, until *time.Time) (*models.Memory, error) {
	mem, err := m.memories.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	tags := mem.Tags
	hasPreserved := false
	for _, t := range tags {
		if strings.EqualFold(t, "preserved") {
			hasPreserved = true
			break
		}
	}
	if !hasPreserved {
		tags = append(tags, "preserved")
	}

	metadata := mem.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	if until != nil {
		metadata["preservedUntil"] = until.Format(time.RFC3339)
	}

	score := 1.0
	state := models.StateActive
	if err := m.memories.Update(ctx, id, store.UpdateFields{
		Tags:       tags,
		DecayScore: &score,
		State:      &state,
		Metadata:   metadata,
	}); err != nil {
		return nil, err
	}

	mem.Tags = tags
	mem.DecayScore = score
	mem.State = state
	mem.Metadata = metadata
	return mem, nil
}

// CleanupExpired hard-deletes memories (and their relation edges) that have
// been soft-deleted and expired for longer than retentionDays.
func (m *Manager) CleanupExpired(ctx context.Context, retentionDays, batch int) (int, error) {
	if retentionDays <= 0 {
		retentionDays = m.cfg.RetentionDays
	}
	if batch <= 0 {
		batch = m.cfg.RetentionBatchSize
	}
	return m.memories.HardDeleteExpired(ctx, retentionDays, batch)
}
