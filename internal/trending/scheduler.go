package trending

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Runner is satisfied by *Job.
type Runner interface {
	Run(ctx context.Context) (Summary, error)
}

// Scheduler runs the ingestion job on a fixed interval inside the server
// process. Runs never overlap: a tick that arrives while a run is in
// progress is dropped by the ticker.
type Scheduler struct {
	job      Runner
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(job Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{job: job, interval: interval, logger: logger}
}

// Start launches the loop. The first run happens one interval after Start.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.logger.Info("trend scheduler started", slog.Duration("interval", s.interval))

	s.wg.Add(1)
	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.job.Run(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("scheduled trend ingestion failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Stop cancels the loop and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.logger.Info("trend scheduler stopped")
}
