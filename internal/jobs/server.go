package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Server runs the worker pool that drains all five job queues.
type Server struct {
	srv *asynq.Server
	mux *asynq.ServeMux
	log *slog.Logger
}

// NewServer builds a worker server whose concurrency workers are shared
// across the queues in proportion to queueWeights, matching the teacher's
// habit of giving each background concern its own weight rather than a
// single flat pool. A nil queueWeights falls back to the package default.
func NewServer(redisOpt asynq.RedisConnOpt, concurrency int, queueWeights map[string]int, h *Handlers, logger *slog.Logger) *Server {
	if queueWeights == nil {
		queueWeights = QueueWeights
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      queueWeights,
		Logger:      slogAdapter{logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("job failed", "type", task.Type(), "error", err)
		}),
	})
	return &Server{srv: srv, mux: h.Mux(), log: logger}
}

// Run starts the worker server and blocks until ctx is canceled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := s.srv.Start(s.mux); err != nil {
		return fmt.Errorf("start job server: %w", err)
	}
	<-ctx.Done()
	s.log.Info("shutting down job server")
	s.srv.Shutdown()
	return nil
}

// slogAdapter bridges asynq's minimal Logger interface onto slog.
type slogAdapter struct{ l *slog.Logger }

func (a slogAdapter) Debug(args ...any) { a.l.Debug(fmt.Sprint(args...)) }
func (a slogAdapter) Info(args ...any)  { a.l.Info(fmt.Sprint(args...)) }
func (a slogAdapter) Warn(args ...any)  { a.l.Warn(fmt.Sprint(args...)) }
func (a slogAdapter) Error(args ...any) { a.l.Error(fmt.Sprint(args...)) }
func (a slogAdapter) Fatal(args ...any) { a.l.Error(fmt.Sprint(args...)) }
