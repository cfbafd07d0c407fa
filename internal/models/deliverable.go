package models

import (
	"time"

	"gorm.io/datatypes"
)

// Binding controls which execution strategy gathers a deliverable's context.
const (
	BindingPlatformBound = "platform_bound"
	BindingCrossPlatform = "cross_platform"
	BindingResearch      = "research"
	BindingHybrid        = "hybrid"
)

// Origin is immutable provenance of how a deliverable came to exist.
const (
	OriginUserConfigured   = "user_configured"
	OriginAnalystSuggested = "analyst_suggested"
	OriginSignalEmergent   = "signal_emergent"
)

const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerEvent    = "event"
)

const (
	GovernanceManual   = "manual"
	GovernanceSemiAuto = "semi_auto"
	GovernanceFullAuto = "full_auto"
)

const (
	DeliverableActive   = "active"
	DeliverablePaused   = "paused"
	DeliverableArchived = "archived"
)

const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// Deliverable is a recurring (or one-shot) commitment to produce content.
type Deliverable struct {
	ID     string `gorm:"type:varchar(36);primaryKey"`
	UserID string `gorm:"type:varchar(100);not null;index"`
	Title  string `gorm:"type:varchar(200);not null"`

	Binding string `gorm:"type:varchar(20);not null;index"`
	Origin  string `gorm:"type:varchar(20);not null"`

	TriggerType string `gorm:"type:varchar(10);not null;index"`
	// Schedule tuple; meaningful only when TriggerType is "schedule".
	Frequency string `gorm:"type:varchar(10)"`
	ByDay     string `gorm:"type:varchar(10)"`
	AtTime    string `gorm:"type:varchar(5)"`
	Timezone  string `gorm:"type:varchar(50)"`
	// NextRunAt is the single authoritative due time for active
	// schedule-triggered deliverables; nil for manual/event/paused/archived.
	NextRunAt *time.Time `gorm:"type:timestamptz;index"`

	// Sources is a JSON array of {platform, scope} read references.
	Sources datatypes.JSON `gorm:"type:jsonb;not null"`
	// Destination is a JSON object {platform, target, format}.
	Destination datatypes.JSON `gorm:"type:jsonb;not null"`
	Governance  string         `gorm:"type:varchar(10);not null;default:'manual'"`

	Status string `gorm:"type:varchar(10);not null;index;default:'active'"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Deliverable) TableName() string {
	return "deliverables"
}

// OneShot reports whether the deliverable resolves after a single version.
func (d Deliverable) OneShot() bool {
	return d.TriggerType != TriggerSchedule
}

// SourceRef is one entry of Deliverable.Sources.
type SourceRef struct {
	Platform string `json:"platform"`
	Scope    string `json:"scope"`
}

// Destination is the decoded form of Deliverable.Destination.
type Destination struct {
	Platform string `json:"platform"`
	Target   string `json:"target"`
	Format   string `json:"format"`
}
