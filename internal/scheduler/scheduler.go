// Package scheduler drives the engine's two clocks: the fine due-deliverable
// tick and the coarse per-user signal tick. Claiming is a compare-and-set on
// next_run_at, so concurrent scheduler instances never double-fire a slot.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Kvkthecreator/yarnnnn-sub001/internal/config"
	cronrunner "github.com/Kvkthecreator/yarnnnn-sub001/internal/cron"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/delivery"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/execution"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/models"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/registry"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/repository"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/schedule"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/signal"
)

var ErrNotRunnable = errors.New("deliverable is not runnable")

type Scheduler struct {
	Repo      repository.Repository
	Registry  *registry.Service
	Pipeline  *execution.Pipeline
	Delivery  *delivery.Service
	Extractor *signal.Extractor
	Reasoner  *signal.Reasoner
	Logger    *zap.Logger
	Config    config.SchedulerConfig
	Signals   config.SignalsConfig
	Now       func() time.Time
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Register wires both ticks onto the cron runner.
func (s *Scheduler) Register(runner *cronrunner.Runner) error {
	if !s.Config.Enabled {
		return nil
	}
	if _, err := runner.Add("due-tick", s.Config.Tick, func(ctx context.Context) {
		s.RunDueTick(ctx)
	}); err != nil {
		return err
	}
	if s.Signals.Enabled {
		if _, err := runner.Add("signal-tick", s.Config.SignalTick, func(ctx context.Context) {
			s.RunSignalTick(ctx)
		}); err != nil {
			return err
		}
	}
	return nil
}

// RunDueTick claims every due deliverable and executes the claimed ones with
// bounded concurrency. Failures are per-deliverable; the tick itself never
// aborts early.
func (s *Scheduler) RunDueTick(ctx context.Context) {
	now := s.now()
	limit := s.Config.ClaimBatch
	if limit <= 0 {
		limit = 50
	}
	due, err := s.Repo.ListDueDeliverables(ctx, now, limit)
	if err != nil {
		s.warn("list due deliverables failed", err)
		return
	}

	maxConcurrent := s.Config.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for i := range due {
		d := due[i]
		if d.NextRunAt == nil {
			continue
		}
		next, err := schedule.Next(d, now)
		if err != nil {
			s.warn("compute next run failed", err, zap.String("deliverable_id", d.ID))
			continue
		}
		// Claim and reschedule in one statement. A false return means another
		// instance already owns this slot, or the deliverable left the active
		// state since the list query.
		claimed, err := s.Repo.ClaimScheduled(ctx, d.ID, *d.NextRunAt, &next)
		if err != nil {
			s.warn("claim failed", err, zap.String("deliverable_id", d.ID))
			continue
		}
		if !claimed {
			continue
		}
		g.Go(func() error {
			s.executeOne(gctx, &d)
			return nil
		})
	}
	_ = g.Wait()
}

// RunNow fires a single execution outside the schedule. Used for manual and
// event triggers and for freshly created signal-emergent deliverables.
func (s *Scheduler) RunNow(ctx context.Context, deliverableID string) (*models.DeliverableVersion, error) {
	d, err := s.Repo.GetDeliverableByID(ctx, deliverableID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, registry.ErrNotFound
	}
	if d.Status != models.DeliverableActive {
		return nil, fmt.Errorf("%w: status %s", ErrNotRunnable, d.Status)
	}
	return s.run(ctx, d)
}

func (s *Scheduler) executeOne(ctx context.Context, d *models.Deliverable) {
	if _, err := s.run(ctx, d); err != nil {
		if errors.Is(err, repository.ErrExecutionInFlight) {
			return
		}
		s.warn("scheduled execution failed", err, zap.String("deliverable_id", d.ID))
	}
}

func (s *Scheduler) run(ctx context.Context, d *models.Deliverable) (*models.DeliverableVersion, error) {
	s.logActivity(ctx, d.UserID, models.ActivityExecutionEnqueued, d.ID,
		fmt.Sprintf("execution enqueued for %q", d.Title))
	version, err := s.Pipeline.Execute(ctx, d)
	if err != nil {
		return version, err
	}
	if err := s.Delivery.Dispatch(ctx, d, version); err != nil {
		return version, err
	}
	return version, nil
}

// RunSignalTick runs the extract→reason→apply pipeline for every user with at
// least one active deliverable. One user's failure never blocks the rest.
func (s *Scheduler) RunSignalTick(ctx context.Context) {
	if s.Extractor == nil || s.Reasoner == nil {
		return
	}
	userIDs, err := s.Repo.ListActiveUserIDs(ctx)
	if err != nil {
		s.warn("list active users failed", err)
		return
	}
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return
		}
		summary, err := s.Extractor.Snapshot(ctx, userID)
		if err != nil {
			s.warn("signal snapshot failed", err, zap.String("user_id", userID))
			continue
		}
		actions, err := s.Reasoner.Decide(ctx, summary)
		if err != nil {
			s.warn("signal reasoning failed", err, zap.String("user_id", userID))
			continue
		}
		for _, action := range actions {
			if err := s.applyAction(ctx, userID, action); err != nil {
				s.warn("apply signal action failed", err,
					zap.String("user_id", userID),
					zap.String("action", action.Type))
			}
		}
	}
}

func (s *Scheduler) applyAction(ctx context.Context, userID string, action signal.Action) error {
	switch action.Type {
	case signal.ActionTriggerExisting:
		if err := s.triggerExisting(ctx, action.DeliverableID); err != nil {
			return err
		}
		s.recordAction(ctx, userID, action,
			fmt.Sprintf("triggered deliverable %s: %s", action.DeliverableID, action.Reason))
		return nil
	case signal.ActionCreateSignalEmergent:
		if action.Spec == nil {
			return fmt.Errorf("create action carries no spec")
		}
		created, err := s.Registry.Create(ctx, registry.CreateSpec{
			UserID:      userID,
			Title:       action.Spec.Title,
			Binding:     action.Spec.Binding,
			Origin:      models.OriginSignalEmergent,
			TriggerType: models.TriggerManual,
			Sources:     action.Spec.Sources,
			Destination: action.Spec.Destination,
			Governance:  models.GovernanceManual,
		})
		if err != nil {
			return err
		}
		s.recordAction(ctx, userID, action,
			fmt.Sprintf("created signal-emergent deliverable %q (%s)", created.Title, created.ID))
		// One immediate execution; the result lands staged for review.
		if _, err := s.RunNow(ctx, created.ID); err != nil && !errors.Is(err, repository.ErrExecutionInFlight) {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

// triggerExisting pulls the deliverable's next run to now; the due tick picks
// it up with the normal claim path. No version is created here, so a target
// that stopped being schedule-advanceable since the policy check is an error,
// never a direct execution.
func (s *Scheduler) triggerExisting(ctx context.Context, deliverableID string) error {
	ok, err := s.Repo.AdvanceNextRun(ctx, deliverableID, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("deliverable %s is not schedule-advanceable", deliverableID)
	}
	return nil
}

// recordAction writes the applied action under its dedup key so the reasoner
// suppresses the same class+target inside its window.
func (s *Scheduler) recordAction(ctx context.Context, userID string, action signal.Action, summary string) {
	s.logActivity(ctx, userID, models.ActivitySignalAction, signal.DedupRef(action), summary)
}

func (s *Scheduler) logActivity(ctx context.Context, userID, eventType, refID, summary string) {
	err := s.Repo.InsertActivity(ctx, &models.ActivityLog{
		UserID:    userID,
		EventType: eventType,
		RefID:     refID,
		Summary:   summary,
		CreatedAt: s.now(),
	})
	if err != nil && s.Logger != nil {
		s.Logger.Warn("activity log write failed", zap.String("event", eventType), zap.Error(err))
	}
}

func (s *Scheduler) warn(msg string, err error, fields ...zap.Field) {
	if s.Logger == nil {
		return
	}
	s.Logger.Warn(msg, append(fields, zap.Error(err))...)
}
