// Package window implements the per-user context window (C11): a
// token-bounded working set of memory ids with periodic rescoring,
// generalized from the teacher's internal/sessions row-per-session store
// into an in-process working set (the window is ephemeral working state,
// not a durable log, so it lives in memory rather than in a table).
package window

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/memsvc/memory/internal/compression"
	"github.com/memsvc/memory/internal/scoring"
	"github.com/memsvc/memory/internal/store"
)

const (
	DefaultMaxWindowSize        = 20
	DefaultMaxTokens            = 4000
	DefaultCompressionThreshold = 0.7
	DefaultScoringInterval      = 60 * time.Second
)

var taskTypeSizes = map[string]int{
	"coding":       15,
	"conversation": 10,
	"analysis":     20,
	"creative":     8,
}

// Entry is one memory slot in a window.
type Entry struct {
	MemoryID   string
	Tokens     int
	Score      float64
	AddedAt    time.Time
	Compressed bool
}

// Config holds a window's tunables.
type Config struct {
	MaxWindowSize        int
	MaxTokens            int
	CompressionThreshold float64
	ScoringInterval      time.Duration
	Weights              scoring.Weights
}

func DefaultConfig() Config {
	return Config{
		MaxWindowSize:        DefaultMaxWindowSize,
		MaxTokens:            DefaultMaxTokens,
		CompressionThreshold: DefaultCompressionThreshold,
		ScoringInterval:      DefaultScoringInterval,
		Weights:              scoring.DefaultWeights(),
	}
}

// window is one user's working set.
type window struct {
	entries     []Entry
	cfg         Config
	totalTokens int
}

// Manager owns every user's window and the memory store it scores against.
type Manager struct {
	mu       sync.Mutex
	windows  map[string]*window
	memories *store.MemoryStore
	logger   *slog.Logger
}

func NewManager(memories *store.MemoryStore, logger *slog.Logger) *Manager {
	return &Manager{windows: map[string]*window{}, memories: memories, logger: logger}
}

func (m *Manager) windowFor(user string) *window {
	w, ok := m.windows[user]
	if !ok {
		w = &window{cfg: DefaultConfig()}
		m.windows[user] = w
	}
	return w
}

// AddToWindow inserts id into user's window, compressing the oldest third
// if the addition would cross the compression threshold, and evicting the
// lowest-scoring entry if the window is already at capacity.
func (m *Manager) AddToWindow(ctx context.Context, user, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.windowFor(user)

	mem, err := m.memories.GetByID(ctx, id)
	if err != nil {
		return err
	}
	tokens := scoring.EstimateTokens(contentText(mem.Content))

	projected := w.totalTokens + tokens
	if float64(projected) >= w.cfg.CompressionThreshold*float64(w.cfg.MaxTokens) {
		m.compressOldestThird(w)
	}

	if len(w.entries) >= w.cfg.MaxWindowSize {
		m.evictLowestScoring(w)
	}

	w.entries = append(w.entries, Entry{MemoryID: id, Tokens: tokens, Score: 1.0, AddedAt: time.Now()})
	w.totalTokens += tokens

	if _, err := m.memories.BumpAccess(ctx, id); err != nil {
		m.logger.Warn("bump access on window add failed", "memory_id", id, "error", err)
	}
	return nil
}

// RemoveFromWindow drops id from user's window and recalculates totals.
func (m *Manager) RemoveFromWindow(user, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.windowFor(user)
	out := w.entries[:0]
	total := 0
	for _, e := range w.entries {
		if e.MemoryID == id {
			continue
		}
		out = append(out, e)
		total += e.Tokens
	}
	w.entries = out
	w.totalTokens = total
}

func (m *Manager) compressOldestThird(w *window) {
	if len(w.entries) == 0 {
		return
	}
	sorted := append([]Entry{}, w.entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].AddedAt.Before(sorted[j].AddedAt) })

	n := len(sorted) / 3
	if n == 0 {
		n = 1
	}
	oldestIDs := map[string]bool{}
	for i := 0; i < n && i < len(sorted); i++ {
		oldestIDs[sorted[i].MemoryID] = true
	}

	for i := range w.entries {
		if oldestIDs[w.entries[i].MemoryID] && !w.entries[i].Compressed {
			reducedTokens := int(float64(w.entries[i].Tokens) * compression.DefaultTargetRatio)
			w.totalTokens -= w.entries[i].Tokens - reducedTokens
			w.entries[i].Tokens = reducedTokens
			w.entries[i].Compressed = true
		}
	}
}

func (m *Manager) evictLowestScoring(w *window) {
	if len(w.entries) == 0 {
		return
	}
	lowest := 0
	for i, e := range w.entries {
		if e.Score < w.entries[lowest].Score {
			lowest = i
		}
	}
	w.totalTokens -= w.entries[lowest].Tokens
	w.entries = append(w.entries[:lowest], w.entries[lowest+1:]...)
}

// AdaptWindow switches the window's scoring weight preferences via
// scoring.AdaptWeights and resizes it for the given task type.
func (m *Manager) AdaptWindow(user, taskType string, priority float64, tokenBudget int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.windowFor(user)

	signals := scoring.Signals{
		IsImportant: priority >= 0.7,
		IsRelevant:  taskType == "coding" || taskType == "analysis",
		IsRecent:    taskType == "conversation",
	}
	weights, _ := scoring.AdaptWeights(w.cfg.Weights, signals)
	w.cfg.Weights = weights

	if size, ok := taskTypeSizes[taskType]; ok {
		w.cfg.MaxWindowSize = size
	}
	if tokenBudget > 0 {
		w.cfg.MaxTokens = tokenBudget
	}
}

// Rescore recomputes each window entry's score using current recency,
// importance, and access signals; call periodically from a ticker loop.
func (m *Manager) Rescore(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for user, w := range m.windows {
		for i, e := range w.entries {
			mem, err := m.memories.GetByID(ctx, e.MemoryID)
			if err != nil {
				continue
			}
			ageHours := time.Since(e.AddedAt).Hours()
			w.entries[i].Score = scoring.Score(scoring.Input{
				AgeHours:    ageHours,
				Importance:  mem.ImportanceScore,
				AccessCount: mem.AccessCount,
				Similarity:  mem.Similarity,
			}, w.cfg.Weights)
		}
		m.logger.Debug("rescored window", "user_context", user, "entries", len(w.entries))
	}
}

// RunRescoreLoop starts a ticker-driven rescoring loop, matching the
// teacher's habit of starting background workers alongside the server in
// cmd/server. Blocks until ctx is done.
func (m *Manager) RunRescoreLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultScoringInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Rescore(ctx)
		}
	}
}

func contentText(content any) string {
	if s, ok := content.(string); ok {
		return s
	}
	if mp, ok := content.(map[string]any); ok {
		if t, ok := mp["text"].(string); ok {
			return t
		}
	}
	return ""
}
