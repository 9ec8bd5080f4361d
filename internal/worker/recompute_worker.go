package worker

import (
	"context"
	"fmt"
	"time"

	"finsight/internal/analytics"
	"finsight/internal/log"

	"github.com/robfig/cron/v3"
)

// UserLister enumerates the users whose analytics need recomputing.
type UserLister interface {
	UserIDs(ctx context.Context) ([]string, error)
}

// Recomputer produces a fresh snapshot for one user.
type Recomputer interface {
	Recompute(ctx context.Context, userID string) (*analytics.Snapshot, error)
}

// RecomputeWorker runs a full analytics sweep on a cron schedule.
type RecomputeWorker struct {
	users    UserLister
	engine   Recomputer
	schedule string
	logger   *log.Logger

	cron *cron.Cron
}

func NewRecomputeWorker(users UserLister, engine Recomputer, schedule string, logger *log.Logger) *RecomputeWorker {
	return &RecomputeWorker{
		users:    users,
		engine:   engine,
		schedule: schedule,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// Start registers the sweep on the schedule and starts the cron
// runner.
func (w *RecomputeWorker) Start(ctx context.Context) error {
	w.cron = cron.New()
	_, err := w.cron.AddFunc(w.schedule, func() {
		if err := w.SweepAll(ctx); err != nil {
			w.logger.Error("scheduled recomputation sweep failed", log.FieldError, err)
		}
	})
	if err != nil {
		return fmt.Errorf("register recompute schedule %q: %w", w.schedule, err)
	}

	w.cron.Start()
	w.logger.Info("recomputation worker started", "schedule", w.schedule)
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (w *RecomputeWorker) Stop() {
	if w.cron == nil {
		return
	}
	<-w.cron.Stop().Done()
	w.logger.Info("recomputation worker stopped")
}

// SweepAll recomputes every user's snapshot, continuing past
// individual failures and reporting the first error at the end.
func (w *RecomputeWorker) SweepAll(ctx context.Context) error {
	start := time.Now()

	userIDs, err := w.users.UserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	var firstErr error
	failures := 0
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.engine.Recompute(ctx, userID); err != nil {
			failures++
			if firstErr == nil {
				firstErr = fmt.Errorf("recompute user %s: %w", userID, err)
			}
			w.logger.Error("user recomputation failed",
				log.FieldUserID, userID,
				log.FieldError, err)
		}
	}

	w.logger.Info("recomputation sweep finished",
		log.FieldCount, len(userIDs),
		"failures", failures,
		log.FieldDuration, time.Since(start).Milliseconds())

	return firstErr
}
