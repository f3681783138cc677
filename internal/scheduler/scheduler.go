package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type Job func(ctx context.Context) error

// Scheduler runs background jobs on standard five-field cron expressions.
// Runs of the same job never overlap.
type Scheduler struct {
	cron    *cron.Cron
	loc     *time.Location
	log     zerolog.Logger
	timeout time.Duration
}

func New(loc *time.Location, log zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		loc:     loc,
		log:     log.With().Str("component", "scheduler").Logger(),
		timeout: 10 * time.Minute,
	}
}

func (s *Scheduler) Add(name, spec string, job Job) error {
	wrapped := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		s.run(name, job)
	}))
	if _, err := s.cron.AddJob(spec, wrapped); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.log.Info().Str("job", name).Str("spec", spec).Msg("job scheduled")
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) run(name string, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("job", name).Interface("panic", r).Msg("job panicked")
		}
	}()

	if err := job(ctx); err != nil {
		s.log.Error().Err(err).Str("job", name).Dur("elapsed", time.Since(start)).Msg("job failed")
		return
	}
	s.log.Info().Str("job", name).Dur("elapsed", time.Since(start)).Msg("job finished")
}
