package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/fieldflow/internal/store"
	"github.com/rendis/fieldflow/pkg/schema"
)

// Policy controls which sessions the sweeper purges and when it runs.
type Policy struct {
	// Schedule is a standard five-field cron expression.
	Schedule string
	// MaxAge is how long an abandoned (non-completed) session may sit idle
	// before it is deleted along with its answers.
	MaxAge time.Duration
	// VacuumAfterSweep reclaims database space after a sweep that deleted rows.
	VacuumAfterSweep bool
}

// Sweeper periodically deletes abandoned sessions per the retention policy.
type Sweeper struct {
	store    store.Store
	policy   Policy
	schedule cron.Schedule
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
}

// NewSweeper creates a Sweeper, parsing and validating the policy schedule.
func NewSweeper(s store.Store, policy Policy, logger *slog.Logger) (*Sweeper, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(policy.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse retention schedule %q: %w", policy.Schedule, err)
	}
	if policy.MaxAge <= 0 {
		return nil, fmt.Errorf("retention max age must be positive, got %s", policy.MaxAge)
	}

	return &Sweeper{
		store:    s,
		policy:   policy,
		schedule: schedule,
		logger:   logger,
	}, nil
}

// Start launches the background sweep loop.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("sweeper already started")
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(sweepCtx)
	s.logger.Info("retention sweeper started",
		slog.String("schedule", s.policy.Schedule),
		slog.Duration("max_age", s.policy.MaxAge),
	)
	return nil
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("retention sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep deletes sessions that have not been updated within the retention
// window and never completed. Completed sessions are kept indefinitely.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.policy.MaxAge)

	stale, err := s.store.ListSessions(ctx, store.SessionFilter{UpdatedBefore: &cutoff})
	if err != nil {
		return fmt.Errorf("list stale sessions: %w", err)
	}

	deleted := 0
	for _, rec := range stale {
		if rec.Status == schema.SessionStatusCompleted {
			continue
		}
		if err := s.store.DeleteSession(ctx, rec.ID); err != nil {
			s.logger.Error("failed to delete stale session",
				slog.String("session_id", rec.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Info("retention sweep completed",
			slog.Int("deleted", deleted),
			slog.Time("cutoff", cutoff),
		)
		if s.policy.VacuumAfterSweep {
			if err := s.store.Vacuum(ctx); err != nil {
				s.logger.Warn("vacuum after sweep failed", slog.String("error", err.Error()))
			}
		}
	}
	return nil
}

// Stop gracefully shuts down the sweeper.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("retention sweeper stopped")
	return nil
}
