package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Version statuses. These four are the whole state set; review flows are a
// governance policy layered on "staged", not extra statuses.
const (
	VersionGenerating = "generating"
	VersionStaged     = "staged"
	VersionDelivered  = "delivered"
	VersionFailed     = "failed"
)

// DeliverableVersion is one execution's output. Immutable once delivered or
// failed. At most one generating version may exist per deliverable (partial
// unique index, see db.AutoMigrate).
type DeliverableVersion struct {
	ID            string `gorm:"type:varchar(36);primaryKey"`
	DeliverableID string `gorm:"type:varchar(36);not null;index;uniqueIndex:idx_versions_deliverable_number,priority:1"`
	VersionNumber int    `gorm:"not null;uniqueIndex:idx_versions_deliverable_number,priority:2"`

	Status  string `gorm:"type:varchar(10);not null;index"`
	Content string `gorm:"type:text"`

	// Provenance.
	ContextDigest datatypes.JSON `gorm:"type:jsonb"`
	StrategyName  string         `gorm:"type:varchar(20)"`
	ErrorDetail   *string        `gorm:"type:text"`

	// Edit record, written once when the version resolves.
	OriginalContent *string          `gorm:"type:text"`
	FinalContent    *string          `gorm:"type:text"`
	EditDiff        datatypes.JSON   `gorm:"type:jsonb"`
	EditDistance    *decimal.Decimal `gorm:"type:numeric(6,5)"`

	CreatedAt  time.Time  `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt  time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
	ResolvedAt *time.Time `gorm:"type:timestamptz"`
}

func (DeliverableVersion) TableName() string {
	return "deliverable_versions"
}

// Terminal reports whether the version can no longer change.
func (v DeliverableVersion) Terminal() bool {
	return v.Status == VersionDelivered || v.Status == VersionFailed
}
