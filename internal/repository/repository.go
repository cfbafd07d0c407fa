package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/Kvkthecreator/yarnnnn-sub001/internal/models"
)

// ErrExecutionInFlight is returned by CreateGeneratingVersion when another
// generating version already exists for the deliverable.
var ErrExecutionInFlight = errors.New("execution already in flight for deliverable")

// ErrVersionImmutable is returned when a mutation targets a version whose
// current status does not permit it (delivered and failed are terminal).
var ErrVersionImmutable = errors.New("version is immutable in its current status")

// Repository is the durable store consumed by the orchestration engine.
type Repository interface {
	// Deliverables.
	InsertDeliverable(ctx context.Context, item *models.Deliverable) error
	GetDeliverableByID(ctx context.Context, id string) (*models.Deliverable, error)
	ListDeliverables(ctx context.Context, params ListDeliverablesParams) ([]models.Deliverable, error)
	CountDeliverables(ctx context.Context, params ListDeliverablesParams) (int64, error)
	ListActiveDeliverablesByUser(ctx context.Context, userID string) ([]models.Deliverable, error)
	ListActiveUserIDs(ctx context.Context) ([]string, error)

	// UpdateDeliverableStatus moves a deliverable between lifecycle states and
	// rewrites next_run_at in the same statement (nil for paused/archived).
	UpdateDeliverableStatus(ctx context.Context, id string, status string, nextRunAt *time.Time) error

	// PromoteDeliverable switches an active manual deliverable to a schedule
	// trigger. Returns false when the deliverable was not in a promotable state.
	PromoteDeliverable(ctx context.Context, id string, frequency, byDay, atTime, timezone string, nextRunAt time.Time) (bool, error)

	// ListDueDeliverables returns active schedule-triggered deliverables with
	// next_run_at <= now.
	ListDueDeliverables(ctx context.Context, now time.Time, limit int) ([]models.Deliverable, error)

	// ClaimScheduled atomically claims a due deliverable by compare-and-set on
	// next_run_at, advancing it to next in the same statement. A false return
	// means another scheduler instance won the claim (or the deliverable was
	// paused/archived meanwhile); the loser skips this tick.
	ClaimScheduled(ctx context.Context, id string, expected time.Time, next *time.Time) (bool, error)

	// AdvanceNextRun pulls an active schedule-triggered deliverable's next run
	// forward (the reasoner's trigger_existing action). Pure scheduling.
	AdvanceNextRun(ctx context.Context, id string, at time.Time) (bool, error)

	// Versions.
	CreateGeneratingVersion(ctx context.Context, item *models.DeliverableVersion) error
	GetVersionByID(ctx context.Context, id string) (*models.DeliverableVersion, error)
	ListVersions(ctx context.Context, params ListVersionsParams) ([]models.DeliverableVersion, error)
	CountVersions(ctx context.Context, params ListVersionsParams) (int64, error)
	MarkVersionStaged(ctx context.Context, id string, content string, digest datatypes.JSON, strategy string) error
	MarkVersionDelivered(ctx context.Context, id string, resolvedAt time.Time) error
	MarkVersionFailed(ctx context.Context, id string, reason string, resolvedAt time.Time) error
	SetVersionEditRecord(ctx context.Context, id string, original, final string, diff datatypes.JSON, distance decimal.Decimal) error

	// Activity log (append-only).
	InsertActivity(ctx context.Context, item *models.ActivityLog) error
	ListActivity(ctx context.Context, params ListActivityParams) ([]models.ActivityLog, error)
	CountActivity(ctx context.Context, params ListActivityParams) (int64, error)
	HasRecentActivity(ctx context.Context, userID, eventType, refID string, since time.Time) (bool, error)

	// Preference memory (append-only).
	InsertPreference(ctx context.Context, item *models.PreferenceObservation) error
	ListRecentPreferences(ctx context.Context, params ListPreferencesParams) ([]models.PreferenceObservation, error)
}

type ListDeliverablesParams struct {
	Limit   int
	Offset  int
	UserID  *string
	Status  *string
	Binding *string
	Origin  *string
	OrderBy string
	Asc     *bool
}

type ListVersionsParams struct {
	Limit         int
	Offset        int
	DeliverableID *string
	Status        *string
	OrderBy       string
	Asc           *bool
}

type ListActivityParams struct {
	Limit     int
	Offset    int
	UserID    *string
	EventType *string
	RefID     *string
	Since     *time.Time
}

type ListPreferencesParams struct {
	Limit         int
	UserID        *string
	DeliverableID *string
	Binding       *string
}
