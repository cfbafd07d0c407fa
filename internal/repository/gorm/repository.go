package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Kvkthecreator/yarnnnn-sub001/internal/models"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- Deliverables -----------------------------------------------------------

func (s *Store) InsertDeliverable(ctx context.Context, item *models.Deliverable) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetDeliverableByID(ctx context.Context, id string) (*models.Deliverable, error) {
	if s == nil || s.db == nil || strings.TrimSpace(id) == "" {
		return nil, nil
	}
	var item models.Deliverable
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListDeliverables(ctx context.Context, params repository.ListDeliverablesParams) ([]models.Deliverable, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.deliverableQuery(ctx, params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	var items []models.Deliverable
	if err := query.Limit(normalizeLimit(params.Limit, 100)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountDeliverables(ctx context.Context, params repository.ListDeliverablesParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var n int64
	if err := s.deliverableQuery(ctx, params).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) deliverableQuery(ctx context.Context, params repository.ListDeliverablesParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Deliverable{})
	if params.UserID != nil && strings.TrimSpace(*params.UserID) != "" {
		query = query.Where("user_id = ?", strings.TrimSpace(*params.UserID))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Binding != nil && strings.TrimSpace(*params.Binding) != "" {
		query = query.Where("binding = ?", strings.TrimSpace(*params.Binding))
	}
	if params.Origin != nil && strings.TrimSpace(*params.Origin) != "" {
		query = query.Where("origin = ?", strings.TrimSpace(*params.Origin))
	}
	return query
}

func (s *Store) ListActiveDeliverablesByUser(ctx context.Context, userID string) ([]models.Deliverable, error) {
	if s == nil || s.db == nil || strings.TrimSpace(userID) == "" {
		return nil, nil
	}
	var items []models.Deliverable
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("status = ?", models.DeliverableActive).
		Order("created_at asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListActiveUserIDs(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.Deliverable{}).
		Where("status = ?", models.DeliverableActive).
		Distinct("user_id").
		Order("user_id asc").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) UpdateDeliverableStatus(ctx context.Context, id string, status string, nextRunAt *time.Time) error {
	if s == nil || s.db == nil || strings.TrimSpace(id) == "" {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Deliverable{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      status,
			"next_run_at": nextRunAt,
			"updated_at":  time.Now().UTC(),
		}).Error
}

func (s *Store) PromoteDeliverable(ctx context.Context, id string, frequency, byDay, atTime, timezone string, nextRunAt time.Time) (bool, error) {
	if s == nil || s.db == nil || strings.TrimSpace(id) == "" {
		return false, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.Deliverable{}).
		Where("id = ?", id).
		Where("status = ?", models.DeliverableActive).
		Where("trigger_type = ?", models.TriggerManual).
		Updates(map[string]any{
			"trigger_type": models.TriggerSchedule,
			"frequency":    frequency,
			"by_day":       byDay,
			"at_time":      atTime,
			"timezone":     timezone,
			"next_run_at":  nextRunAt,
			"updated_at":   time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (s *Store) ListDueDeliverables(ctx context.Context, now time.Time, limit int) ([]models.Deliverable, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Deliverable
	err := s.db.WithContext(ctx).
		Where("status = ?", models.DeliverableActive).
		Where("trigger_type = ?", models.TriggerSchedule).
		Where("next_run_at IS NOT NULL").
		Where("next_run_at <= ?", now).
		Order("next_run_at asc").
		Limit(normalizeLimit(limit, 50)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ClaimScheduled(ctx context.Context, id string, expected time.Time, next *time.Time) (bool, error) {
	if s == nil || s.db == nil || strings.TrimSpace(id) == "" {
		return false, nil
	}
	// Single-statement CAS: the claim and the reschedule succeed or fail
	// together, so a crash after this point cannot double-fire.
	res := s.db.WithContext(ctx).
		Model(&models.Deliverable{}).
		Where("id = ?", id).
		Where("status = ?", models.DeliverableActive).
		Where("trigger_type = ?", models.TriggerSchedule).
		Where("next_run_at = ?", expected).
		Updates(map[string]any{
			"next_run_at": next,
			"updated_at":  time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (s *Store) AdvanceNextRun(ctx context.Context, id string, at time.Time) (bool, error) {
	if s == nil || s.db == nil || strings.TrimSpace(id) == "" {
		return false, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.Deliverable{}).
		Where("id = ?", id).
		Where("status = ?", models.DeliverableActive).
		Where("trigger_type = ?", models.TriggerSchedule).
		Updates(map[string]any{
			"next_run_at": at,
			"updated_at":  time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

// --- Versions ---------------------------------------------------------------

func (s *Store) CreateGeneratingVersion(ctx context.Context, item *models.DeliverableVersion) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Status = models.VersionGenerating
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if item.VersionNumber <= 0 {
			var maxNumber int
			err := tx.Model(&models.DeliverableVersion{}).
				Where("deliverable_id = ?", item.DeliverableID).
				Select("COALESCE(MAX(version_number), 0)").
				Scan(&maxNumber).Error
			if err != nil {
				return err
			}
			item.VersionNumber = maxNumber + 1
		}
		if err := tx.Create(item).Error; err != nil {
			// The partial unique index rejects a second generating version.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return repository.ErrExecutionInFlight
			}
			return err
		}
		return nil
	})
}

func (s *Store) GetVersionByID(ctx context.Context, id string) (*models.DeliverableVersion, error) {
	if s == nil || s.db == nil || strings.TrimSpace(id) == "" {
		return nil, nil
	}
	var item models.DeliverableVersion
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListVersions(ctx context.Context, params repository.ListVersionsParams) ([]models.DeliverableVersion, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrder(s.versionQuery(ctx, params), params.OrderBy, params.Asc, "version_number")
	var items []models.DeliverableVersion
	if err := query.Limit(normalizeLimit(params.Limit, 50)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountVersions(ctx context.Context, params repository.ListVersionsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var n int64
	if err := s.versionQuery(ctx, params).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) versionQuery(ctx context.Context, params repository.ListVersionsParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.DeliverableVersion{})
	if params.DeliverableID != nil && strings.TrimSpace(*params.DeliverableID) != "" {
		query = query.Where("deliverable_id = ?", strings.TrimSpace(*params.DeliverableID))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	return query
}

func (s *Store) MarkVersionStaged(ctx context.Context, id string, content string, digest datatypes.JSON, strategy string) error {
	if s == nil || s.db == nil || strings.TrimSpace(id) == "" {
		return nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.DeliverableVersion{}).
		Where("id = ?", id).
		Where("status = ?", models.VersionGenerating).
		Updates(map[string]any{
			"status":         models.VersionStaged,
			"content":        content,
			"context_digest": digest,
			"strategy_name":  strategy,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrVersionImmutable
	}
	return nil
}

func (s *Store) MarkVersionDelivered(ctx context.Context, id string, resolvedAt time.Time) error {
	if s == nil || s.db == nil || strings.TrimSpace(id) == "" {
		return nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.DeliverableVersion{}).
		Where("id = ?", id).
		Where("status = ?", models.VersionStaged).
		Updates(map[string]any{
			"status":      models.VersionDelivered,
			"resolved_at": resolvedAt,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrVersionImmutable
	}
	return nil
}

func (s *Store) MarkVersionFailed(ctx context.Context, id string, reason string, resolvedAt time.Time) error {
	if s == nil || s.db == nil || strings.TrimSpace(id) == "" {
		return nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.DeliverableVersion{}).
		Where("id = ?", id).
		Where("status IN ?", []string{models.VersionGenerating, models.VersionStaged}).
		Updates(map[string]any{
			"status":       models.VersionFailed,
			"error_detail": reason,
			"resolved_at":  resolvedAt,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrVersionImmutable
	}
	return nil
}

func (s *Store) SetVersionEditRecord(ctx context.Context, id string, original, final string, diff datatypes.JSON, distance decimal.Decimal) error {
	if s == nil || s.db == nil || strings.TrimSpace(id) == "" {
		return nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.DeliverableVersion{}).
		Where("id = ?", id).
		Where("status = ?", models.VersionStaged).
		Where("original_content IS NULL").
		Updates(map[string]any{
			"original_content": original,
			"final_content":    final,
			"edit_diff":        diff,
			"edit_distance":    distance,
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrVersionImmutable
	}
	return nil
}

// --- Activity log -----------------------------------------------------------

func (s *Store) InsertActivity(ctx context.Context, item *models.ActivityLog) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListActivity(ctx context.Context, params repository.ListActivityParams) ([]models.ActivityLog, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.ActivityLog
	err := s.activityQuery(ctx, params).Order("created_at desc").
		Limit(normalizeLimit(params.Limit, 200)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountActivity(ctx context.Context, params repository.ListActivityParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var n int64
	if err := s.activityQuery(ctx, params).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) activityQuery(ctx context.Context, params repository.ListActivityParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.ActivityLog{})
	if params.UserID != nil && strings.TrimSpace(*params.UserID) != "" {
		query = query.Where("user_id = ?", strings.TrimSpace(*params.UserID))
	}
	if params.EventType != nil && strings.TrimSpace(*params.EventType) != "" {
		query = query.Where("event_type = ?", strings.TrimSpace(*params.EventType))
	}
	if params.RefID != nil && strings.TrimSpace(*params.RefID) != "" {
		query = query.Where("ref_id = ?", strings.TrimSpace(*params.RefID))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	return query
}

func (s *Store) HasRecentActivity(ctx context.Context, userID, eventType, refID string, since time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.ActivityLog{}).
		Where("user_id = ?", userID).
		Where("event_type = ?", eventType).
		Where("ref_id = ?", refID).
		Where("created_at >= ?", since).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// --- Preference memory ------------------------------------------------------

func (s *Store) InsertPreference(ctx context.Context, item *models.PreferenceObservation) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListRecentPreferences(ctx context.Context, params repository.ListPreferencesParams) ([]models.PreferenceObservation, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.PreferenceObservation{})
	if params.UserID != nil && strings.TrimSpace(*params.UserID) != "" {
		query = query.Where("user_id = ?", strings.TrimSpace(*params.UserID))
	}
	if params.DeliverableID != nil && strings.TrimSpace(*params.DeliverableID) != "" {
		query = query.Where("deliverable_id = ?", strings.TrimSpace(*params.DeliverableID))
	}
	if params.Binding != nil && strings.TrimSpace(*params.Binding) != "" {
		query = query.Where("binding = ?", strings.TrimSpace(*params.Binding))
	}
	var items []models.PreferenceObservation
	err := query.Order("created_at desc").
		Limit(normalizeLimit(params.Limit, 10)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Helpers ----------------------------------------------------------------

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

var orderableColumns = map[string]bool{
	"created_at":     true,
	"updated_at":     true,
	"next_run_at":    true,
	"version_number": true,
	"title":          true,
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	col := strings.TrimSpace(orderBy)
	if !orderableColumns[col] {
		col = fallback
	}
	dir := "desc"
	if asc != nil && *asc {
		dir = "asc"
	}
	return query.Order(col + " " + dir)
}
