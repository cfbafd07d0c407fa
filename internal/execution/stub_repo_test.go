package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/Kvkthecreator/yarnnnn-sub001/internal/models"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository
// with real single-flight and status-guard behavior on versions.
type stubRepo struct {
	versions map[string]*models.DeliverableVersion
	prefs    []models.PreferenceObservation
	activity []models.ActivityLog
}

func newStubRepo() *stubRepo {
	return &stubRepo{versions: map[string]*models.DeliverableVersion{}}
}

func (s *stubRepo) CreateGeneratingVersion(ctx context.Context, item *models.DeliverableVersion) error {
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
	v, ok := s.versions[id]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (s *stubRepo) MarkVersionStaged(ctx context.Context, id string, content string, digest datatypes.JSON, strategy string) error {
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
	v, ok := s.versions[id]
	if !ok || v.Status != models.VersionStaged {
		return repository.ErrVersionImmutable
	}
	v.Status = models.VersionDelivered
	v.ResolvedAt = &resolvedAt
	return nil
}

func (s *stubRepo) MarkVersionFailed(ctx context.Context, id string, reason string, resolvedAt time.Time) error {
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

func (s *stubRepo) ListRecentPreferences(ctx context.Context, params repository.ListPreferencesParams) ([]models.PreferenceObservation, error) {
	var out []models.PreferenceObservation
	for i := len(s.prefs) - 1; i >= 0; i-- {
		p := s.prefs[i]
		if params.UserID != nil && p.UserID != *params.UserID {
			continue
		}
		if params.DeliverableID != nil && p.DeliverableID != *params.DeliverableID {
			continue
		}
		if params.Binding != nil && p.Binding != *params.Binding {
			continue
		}
		out = append(out, p)
		if params.Limit > 0 && len(out) >= params.Limit {
			break
		}
	}
	return out, nil
}

func (s *stubRepo) InsertPreference(ctx context.Context, item *models.PreferenceObservation) error {
	s.prefs = append(s.prefs, *item)
	return nil
}

func (s *stubRepo) InsertActivity(ctx context.Context, item *models.ActivityLog) error {
	s.activity = append(s.activity, *item)
	return nil
}

func (s *stubRepo) ListActivity(ctx context.Context, params repository.ListActivityParams) ([]models.ActivityLog, error) {
	return s.activity, nil
}

func (s *stubRepo) HasRecentActivity(ctx context.Context, userID, eventType, refID string, since time.Time) (bool, error) {
	return false, nil
}

func (s *stubRepo) InsertDeliverable(ctx context.Context, item *models.Deliverable) error { return nil }

func (s *stubRepo) GetDeliverableByID(ctx context.Context, id string) (*models.Deliverable, error) {
	return nil, nil
}

func (s *stubRepo) ListDeliverables(ctx context.Context, params repository.ListDeliverablesParams) ([]models.Deliverable, error) {
	return nil, nil
}

func (s *stubRepo) CountDeliverables(ctx context.Context, params repository.ListDeliverablesParams) (int64, error) {
	return 0, nil
}

func (s *stubRepo) ListActiveDeliverablesByUser(ctx context.Context, userID string) ([]models.Deliverable, error) {
	return nil, nil
}

func (s *stubRepo) ListActiveUserIDs(ctx context.Context) ([]string, error) { return nil, nil }

func (s *stubRepo) UpdateDeliverableStatus(ctx context.Context, id string, status string, nextRunAt *time.Time) error {
	return nil
}

func (s *stubRepo) PromoteDeliverable(ctx context.Context, id string, frequency, byDay, atTime, timezone string, nextRunAt time.Time) (bool, error) {
	return false, nil
}

func (s *stubRepo) ListDueDeliverables(ctx context.Context, now time.Time, limit int) ([]models.Deliverable, error) {
	return nil, nil
}

func (s *stubRepo) ClaimScheduled(ctx context.Context, id string, expected time.Time, next *time.Time) (bool, error) {
	return false, nil
}

func (s *stubRepo) AdvanceNextRun(ctx context.Context, id string, at time.Time) (bool, error) {
	return false, nil
}

func (s *stubRepo) ListVersions(ctx context.Context, params repository.ListVersionsParams) ([]models.DeliverableVersion, error) {
	return nil, nil
}

func (s *stubRepo) CountVersions(ctx context.Context, params repository.ListVersionsParams) (int64, error) {
	return 0, nil
}

func (s *stubRepo) CountActivity(ctx context.Context, params repository.ListActivityParams) (int64, error) {
	return 0, nil
}
