package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"

	"github.com/memsvc/memory/internal/store"
)

// DecayController gates the periodic decay schedule behind pause/resume and
// a feature-flagged kill switch, per §4.12. It sits in front of a Client so
// scheduled and manually triggered decay runs go through the same guard.
type DecayController struct {
	client  *Client
	enabled atomic.Bool // kill switch: false disables decay entirely
	paused  atomic.Bool // pause/resume: true skips scheduled runs but keeps manual triggers working
}

func NewDecayController(client *Client, enabledByDefault bool) *DecayController {
	c := &DecayController{client: client}
	c.enabled.Store(enabledByDefault)
	return c
}

func (c *DecayController) Enable(v bool)  { c.enabled.Store(v) }
func (c *DecayController) Pause()         { c.paused.Store(true) }
func (c *DecayController) Resume()        { c.paused.Store(false) }
func (c *DecayController) IsEnabled() bool { return c.enabled.Load() }
func (c *DecayController) IsPaused() bool  { return c.paused.Load() }

// RunScheduled enqueues a decay batch for userContext unless the kill switch
// is off or the schedule is paused. Called from the periodic scheduler task.
func (c *DecayController) RunScheduled(ctx context.Context, userContext string, batchSize int) error {
	if !c.enabled.Load() || c.paused.Load() {
		return nil
	}
	return c.client.EnqueueDecay(ctx, DecayPayload{UserContext: userContext, BatchSize: batchSize})
}

// Trigger enqueues a decay batch regardless of pause state, but still
// respects the kill switch. Nothing in the module calls it at present.
func (c *DecayController) Trigger(ctx context.Context, userContext string, batchSize int) error {
	if !c.enabled.Load() {
		return fmt.Errorf("decay is disabled")
	}
	return c.client.EnqueueDecay(ctx, DecayPayload{UserContext: userContext, BatchSize: batchSize})
}

// decayTaskProvider implements asynq.PeriodicTaskConfigProvider so the scheduler can
// discover one decay entry per known user context without a static config
// file, refreshed each time the scheduler polls its provider.
type decayTaskProvider struct {
	memories  *store.MemoryStore
	decay     *DecayController
	batchSize int
}

func (p *decayTaskProvider) GetConfigs() ([]*asynq.PeriodicTaskConfig, error) {
	if !p.decay.IsEnabled() || p.decay.IsPaused() {
		return nil, nil
	}
	contexts, err := p.memories.DistinctUserContexts(context.Background())
	if err != nil {
		return nil, fmt.Errorf("list user contexts for decay schedule: %w", err)
	}
	configs := make([]*asynq.PeriodicTaskConfig, 0, len(contexts))
	for _, uc := range contexts {
		task := NewDecayTask(DecayPayload{UserContext: uc, BatchSize: p.batchSize})
		configs = append(configs, &asynq.PeriodicTaskConfig{Cronspec: "@every 1h", Task: task})
	}
	return configs, nil
}

// NewPeriodicManager builds the hourly decay schedule described in §4.12,
// one entry per user context. The provider returns no entries while decay
// is disabled or paused, so either change takes effect at the manager's next
// sync (every 10 minutes); the decay handler itself does not consult the
// DecayController.
func NewPeriodicManager(redisOpt asynq.RedisConnOpt, memories *store.MemoryStore, decay *DecayController, batchSize int, logger *slog.Logger) (*asynq.PeriodicTaskManager, error) {
	provider := &decayTaskProvider{memories: memories, decay: decay, batchSize: batchSize}
	mgr, err := asynq.NewPeriodicTaskManager(asynq.PeriodicTaskManagerOpts{
		RedisConnOpt:               redisOpt,
		PeriodicTaskConfigProvider: provider,
		SyncInterval:               10 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("create periodic task manager: %w", err)
	}
	logger.Info("decay schedule ready", "cronspec", "@every 1h", "batch_size", batchSize)
	return mgr, nil
}
