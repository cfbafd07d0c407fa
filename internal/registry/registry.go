// Package registry owns the Deliverable lifecycle state machine. All
// mutations from outside the engine (the conversational agent) and from the
// signal reasoner come through here.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/Kvkthecreator/yarnnnn-sub001/internal/models"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/repository"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/schedule"
)

var (
	ErrNotFound          = errors.New("deliverable not found")
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	ErrNotPromotable     = errors.New("deliverable is not promotable")
)

var validBindings = map[string]bool{
	models.BindingPlatformBound: true,
	models.BindingCrossPlatform: true,
	models.BindingResearch:      true,
	models.BindingHybrid:        true,
}

var validOrigins = map[string]bool{
	models.OriginUserConfigured:   true,
	models.OriginAnalystSuggested: true,
	models.OriginSignalEmergent:   true,
}

var validGovernance = map[string]bool{
	models.GovernanceManual:   true,
	models.GovernanceSemiAuto: true,
	models.GovernanceFullAuto: true,
}

type Service struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// CreateSpec is the agent- and reasoner-facing creation request.
type CreateSpec struct {
	UserID      string             `json:"user_id"`
	Title       string             `json:"title"`
	Binding     string             `json:"binding"`
	Origin      string             `json:"origin"`
	TriggerType string             `json:"trigger_type"`
	Frequency   string             `json:"frequency"`
	ByDay       string             `json:"by_day"`
	AtTime      string             `json:"at_time"`
	Timezone    string             `json:"timezone"`
	Sources     []models.SourceRef `json:"sources"`
	Destination models.Destination `json:"destination"`
	Governance  string             `json:"governance"`
}

func (s *Service) Create(ctx context.Context, spec CreateSpec) (*models.Deliverable, error) {
	if spec.UserID == "" || spec.Title == "" {
		return nil, fmt.Errorf("user_id and title are required")
	}
	if !validBindings[spec.Binding] {
		return nil, fmt.Errorf("unknown binding %q", spec.Binding)
	}
	if !validOrigins[spec.Origin] {
		return nil, fmt.Errorf("unknown origin %q", spec.Origin)
	}
	governance := spec.Governance
	if governance == "" {
		governance = models.GovernanceManual
	}
	if !validGovernance[governance] {
		return nil, fmt.Errorf("unknown governance %q", spec.Governance)
	}
	if len(spec.Sources) == 0 {
		return nil, fmt.Errorf("at least one source is required")
	}

	item := &models.Deliverable{
		ID:          uuid.NewString(),
		UserID:      spec.UserID,
		Title:       spec.Title,
		Binding:     spec.Binding,
		Origin:      spec.Origin,
		TriggerType: spec.TriggerType,
		Governance:  governance,
		Status:      models.DeliverableActive,
	}

	switch spec.TriggerType {
	case models.TriggerSchedule:
		if err := schedule.Validate(spec.Frequency, spec.ByDay, spec.AtTime, spec.Timezone); err != nil {
			return nil, err
		}
		item.Frequency = spec.Frequency
		item.ByDay = spec.ByDay
		item.AtTime = spec.AtTime
		item.Timezone = spec.Timezone
		next, err := schedule.Next(*item, s.now())
		if err != nil {
			return nil, err
		}
		item.NextRunAt = &next
	case models.TriggerManual, models.TriggerEvent:
		// No next_run_at; runs are fired explicitly.
	default:
		return nil, fmt.Errorf("unknown trigger_type %q", spec.TriggerType)
	}

	sources, err := json.Marshal(spec.Sources)
	if err != nil {
		return nil, err
	}
	dest, err := json.Marshal(spec.Destination)
	if err != nil {
		return nil, err
	}
	item.Sources = datatypes.JSON(sources)
	item.Destination = datatypes.JSON(dest)

	if err := s.Repo.InsertDeliverable(ctx, item); err != nil {
		return nil, err
	}
	s.logActivity(ctx, item.UserID, models.ActivityDeliverableCreated, item.ID,
		fmt.Sprintf("created deliverable %q (%s, %s)", item.Title, item.Binding, item.Origin))
	return item, nil
}

func (s *Service) Pause(ctx context.Context, id string) error {
	item, err := s.mustGet(ctx, id)
	if err != nil {
		return err
	}
	if item.Status != models.DeliverableActive {
		return fmt.Errorf("%w: %s -> paused", ErrInvalidTransition, item.Status)
	}
	return s.Repo.UpdateDeliverableStatus(ctx, id, models.DeliverablePaused, nil)
}

func (s *Service) Resume(ctx context.Context, id string) error {
	item, err := s.mustGet(ctx, id)
	if err != nil {
		return err
	}
	if item.Status != models.DeliverablePaused {
		return fmt.Errorf("%w: %s -> active", ErrInvalidTransition, item.Status)
	}
	var next *time.Time
	if item.TriggerType == models.TriggerSchedule {
		n, err := schedule.Next(*item, s.now())
		if err != nil {
			return err
		}
		next = &n
	}
	return s.Repo.UpdateDeliverableStatus(ctx, id, models.DeliverableActive, next)
}

// Archive is terminal. An in-flight execution is allowed to finish; the
// claim step re-checks status so no further run is ever scheduled.
func (s *Service) Archive(ctx context.Context, id string) error {
	item, err := s.mustGet(ctx, id)
	if err != nil {
		return err
	}
	if item.Status == models.DeliverableArchived {
		return nil
	}
	return s.Repo.UpdateDeliverableStatus(ctx, id, models.DeliverableArchived, nil)
}

// PromoteToRecurring converts an active one-shot (manual trigger) deliverable
// to a scheduled one. Origin is preserved; only the trigger changes.
func (s *Service) PromoteToRecurring(ctx context.Context, id, frequency, byDay, atTime, timezone string) (*models.Deliverable, error) {
	item, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != models.DeliverableActive || item.TriggerType != models.TriggerManual {
		return nil, ErrNotPromotable
	}
	if err := schedule.Validate(frequency, byDay, atTime, timezone); err != nil {
		return nil, err
	}
	probe := *item
	probe.TriggerType = models.TriggerSchedule
	probe.Frequency = frequency
	probe.ByDay = byDay
	probe.AtTime = atTime
	probe.Timezone = timezone
	next, err := schedule.Next(probe, s.now())
	if err != nil {
		return nil, err
	}
	ok, err := s.Repo.PromoteDeliverable(ctx, id, frequency, byDay, atTime, timezone, next)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race with a pause/archive; treat as not promotable.
		return nil, ErrNotPromotable
	}
	return s.Repo.GetDeliverableByID(ctx, id)
}

// ResolveOneShot archives a non-scheduled deliverable once its single version
// has resolved (delivered, failed, or rejected).
func (s *Service) ResolveOneShot(ctx context.Context, deliverable *models.Deliverable) error {
	if deliverable == nil || !deliverable.OneShot() {
		return nil
	}
	if deliverable.Status == models.DeliverableArchived {
		return nil
	}
	return s.Repo.UpdateDeliverableStatus(ctx, deliverable.ID, models.DeliverableArchived, nil)
}

func (s *Service) mustGet(ctx context.Context, id string) (*models.Deliverable, error) {
	item, err := s.Repo.GetDeliverableByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrNotFound
	}
	return item, nil
}

func (s *Service) logActivity(ctx context.Context, userID, eventType, refID, summary string) {
	if s.Repo == nil {
		return
	}
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
