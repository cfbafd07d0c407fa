package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/Kvkthecreator/yarnnnn-sub001/internal/models"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository
// with real claim, single-flight, and dedup-lookup semantics. Guarded by a
// mutex because the due tick executes claimed work concurrently.
type stubRepo struct {
	mu           sync.Mutex
	deliverables map[string]*models.Deliverable
	versions     map[string]*models.DeliverableVersion
	activity     []models.ActivityLog
	prefs        []models.PreferenceObservation

	claimRefused bool
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		deliverables: map[string]*models.Deliverable{},
		versions:     map[string]*models.DeliverableVersion{},
	}
}

func (s *stubRepo) InsertDeliverable(ctx context.Context, item *models.Deliverable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *item
	s.deliverables[item.ID] = &cp
	return nil
}

func (s *stubRepo) GetDeliverableByID(ctx context.Context, id string) (*models.Deliverable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.deliverables[id]
	if !ok {
		return nil, nil
	}
	cp := *item
	return &cp, nil
}

func (s *stubRepo) ListDeliverables(ctx context.Context, params repository.ListDeliverablesParams) ([]models.Deliverable, error) {
	return nil, nil
}

func (s *stubRepo) CountDeliverables(ctx context.Context, params repository.ListDeliverablesParams) (int64, error) {
	return 0, nil
}

func (s *stubRepo) ListActiveDeliverablesByUser(ctx context.Context, userID string) ([]models.Deliverable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Deliverable
	for _, d := range s.deliverables {
		if d.UserID == userID && d.Status == models.DeliverableActive {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *stubRepo) ListActiveUserIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, d := range s.deliverables {
		if d.Status == models.DeliverableActive && !seen[d.UserID] {
			seen[d.UserID] = true
			out = append(out, d.UserID)
		}
	}
	return out, nil
}

func (s *stubRepo) UpdateDeliverableStatus(ctx context.Context, id string, status string, nextRunAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.deliverables[id]; ok {
		item.Status = status
		item.NextRunAt = nextRunAt
	}
	return nil
}

func (s *stubRepo) PromoteDeliverable(ctx context.Context, id string, frequency, byDay, atTime, timezone string, nextRunAt time.Time) (bool, error) {
	return false, nil
}

func (s *stubRepo) ListDueDeliverables(ctx context.Context, now time.Time, limit int) ([]models.Deliverable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Deliverable
	for _, d := range s.deliverables {
		if d.Status != models.DeliverableActive || d.TriggerType != models.TriggerSchedule {
			continue
		}
		if d.NextRunAt == nil || d.NextRunAt.After(now) {
			continue
		}
		out = append(out, *d)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *stubRepo) ClaimScheduled(ctx context.Context, id string, expected time.Time, next *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimRefused {
		return false, nil
	}
	d, ok := s.deliverables[id]
	if !ok || d.Status != models.DeliverableActive || d.TriggerType != models.TriggerSchedule {
		return false, nil
	}
	if d.NextRunAt == nil || !d.NextRunAt.Equal(expected) {
		return false, nil
	}
	d.NextRunAt = next
	return true, nil
}

func (s *stubRepo) AdvanceNextRun(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deliverables[id]
	if !ok || d.Status != models.DeliverableActive || d.TriggerType != models.TriggerSchedule {
		return false, nil
	}
	d.NextRunAt = &at
	return true, nil
}

func (s *stubRepo) CreateGeneratingVersion(ctx context.Context, item *models.DeliverableVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	max := 0
	for _, v := range s.versions {
		if v.DeliverableID != item.DeliverableID {
			continue
		}
		if v.Status == models.VersionGenerating {
			return repository.ErrExecutionInFlight
		}
		if v.VersionNumber > max {
			max = v.VersionNumber
		}
	}
	item.VersionNumber = max + 1
	cp := *item
	s.versions[item.ID] = &cp
	return nil
}

func (s *stubRepo) GetVersionByID(ctx context.Context, id string) (*models.DeliverableVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[id]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (s *stubRepo) ListVersions(ctx context.Context, params repository.ListVersionsParams) ([]models.DeliverableVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DeliverableVersion
	for _, v := range s.versions {
		if params.DeliverableID != nil && v.DeliverableID != *params.DeliverableID {
			continue
		}
		out = append(out, *v)
	}
	return out, nil
}

func (s *stubRepo) CountVersions(ctx context.Context, params repository.ListVersionsParams) (int64, error) {
	items, _ := s.ListVersions(ctx, params)
	return int64(len(items)), nil
}

func (s *stubRepo) CountActivity(ctx context.Context, params repository.ListActivityParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.activity)), nil
}

func (s *stubRepo) MarkVersionStaged(ctx context.Context, id string, content string, digest datatypes.JSON, strategy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[id]
	if !ok || v.Status != models.VersionGenerating {
		return repository.ErrVersionImmutable
	}
	v.Status = models.VersionStaged
	v.Content = content
	v.ContextDigest = digest
	v.StrategyName = strategy
	return nil
}

func (s *stubRepo) MarkVersionDelivered(ctx context.Context, id string, resolvedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[id]
	if !ok || v.Status != models.VersionStaged {
		return repository.ErrVersionImmutable
	}
	v.Status = models.VersionDelivered
	v.ResolvedAt = &resolvedAt
	return nil
}

func (s *stubRepo) MarkVersionFailed(ctx context.Context, id string, reason string, resolvedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[id]
	if !ok || v.Terminal() {
		return repository.ErrVersionImmutable
	}
	v.Status = models.VersionFailed
	v.ErrorDetail = &reason
	v.ResolvedAt = &resolvedAt
	return nil
}

func (s *stubRepo) SetVersionEditRecord(ctx context.Context, id string, original, final string, diff datatypes.JSON, distance decimal.Decimal) error {
	return nil
}

func (s *stubRepo) InsertActivity(ctx context.Context, item *models.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, *item)
	return nil
}

func (s *stubRepo) ListActivity(ctx context.Context, params repository.ListActivityParams) ([]models.ActivityLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ActivityLog, len(s.activity))
	copy(out, s.activity)
	return out, nil
}

func (s *stubRepo) HasRecentActivity(ctx context.Context, userID, eventType, refID string, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.activity {
		if entry.UserID == userID && entry.EventType == eventType && entry.RefID == refID && !entry.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubRepo) InsertPreference(ctx context.Context, item *models.PreferenceObservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs = append(s.prefs, *item)
	return nil
}

func (s *stubRepo) ListRecentPreferences(ctx context.Context, params repository.ListPreferencesParams) ([]models.PreferenceObservation, error) {
	return nil, nil
}

func (s *stubRepo) countByEvent(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, entry := range s.activity {
		if entry.EventType == eventType {
			n++
		}
	}
	return n
}
