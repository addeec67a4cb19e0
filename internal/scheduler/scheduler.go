// Package scheduler runs a job on a cron schedule. A run that is still in
// progress when the next tick fires causes that tick to be skipped.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled unit of work. The context is cancelled on Stop.
type Job func(ctx context.Context) error

// Scheduler triggers a single named job.
type Scheduler struct {
	cron   *cron.Cron
	name   string
	spec   string
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// New parses spec (standard 5-field cron or a descriptor such as
// "@every 1h") and registers job under name.
func New(name, spec string, job Job, logger *slog.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		name:   name,
		spec:   spec,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	if _, err := s.cron.AddFunc(spec, func() { s.run(job) }); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule job %s: %w", name, err)
	}
	return s, nil
}

func (s *Scheduler) run(job Job) {
	start := time.Now()
	s.logger.Info("scheduled job started", "job", s.name)
	if err := job(s.ctx); err != nil {
		s.logger.Error("scheduled job failed", "job", s.name, "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Info("scheduled job finished", "job", s.name, "duration", time.Since(start))
}

// Start begins firing the job in the background.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler starting", "job", s.name, "schedule", s.spec)
	s.cron.Start()
}

// Stop cancels a running job and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped", "job", s.name)
}
