package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var _ SchedulerInterface = (*Scheduler)(nil)

// Scheduler triggers passes on startup and then every interval.
type Scheduler struct {
	runner     PassRunner
	interval   time.Duration
	runOnStart bool
	passes     chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewScheduler returns a scheduler; a zero interval disables periodic passes.
func NewScheduler(runner PassRunner, interval time.Duration, runOnStart bool) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		runner:     runner,
		interval:   interval,
		runOnStart: runOnStart,
		passes:     make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.worker()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if s.runOnStart {
			s.Trigger()
		}

		if s.interval <= 0 {
			return
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.Trigger()
			}
		}
	}()
}

// Stop cancels any in-flight pass and waits for the workers to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Trigger requests a pass. Requests made while one is pending are coalesced.
func (s *Scheduler) Trigger() {
	select {
	case s.passes <- struct{}{}:
	default:
		slog.Debug("Sync pass already pending")
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.passes:
			s.runPass()
		}
	}
}

func (s *Scheduler) runPass() {
	result, err := s.runner.RunPass(s.ctx)
	if err != nil {
		if errors.Is(err, ErrPassInProgress) {
			slog.Debug("Skipping scheduled sync, pass in progress")
			return
		}
		slog.Error("Scheduled sync failed", "error", err)
		return
	}

	slog.Debug("Scheduled sync finished", "pass_id", result.ID, "new", result.NewEntries, "failed", result.Failed, "duration", result.Duration)
}
