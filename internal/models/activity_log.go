package models

import (
	"time"

	"gorm.io/datatypes"
)

// Activity event types written by the engine.
const (
	ActivityExecutionEnqueued  = "execution_enqueued"
	ActivityVersionStaged      = "version_staged"
	ActivityVersionDelivered   = "version_delivered"
	ActivityVersionFailed      = "version_failed"
	ActivityVersionRejected    = "version_rejected"
	ActivityDeliverableCreated = "deliverable_created"
	ActivitySignalAction       = "signal_action"
	ActivityFeedbackRecorded   = "feedback_recorded"
)

// ActivityLog is the append-only provenance record. Rows are never updated or
// deleted.
type ActivityLog struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	UserID    string `gorm:"type:varchar(100);not null;index"`
	EventType string `gorm:"type:varchar(40);not null;index"`
	// RefID points at the deliverable, version, or signal target the event
	// concerns. Signal dedup keys land here.
	RefID    string         `gorm:"type:varchar(200);index"`
	Summary  string         `gorm:"type:text"`
	Metadata datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (ActivityLog) TableName() string {
	return "activity_log"
}
