package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Edit classification categories.
const (
	EditAddition      = "addition"
	EditDeletion      = "deletion"
	EditRestructuring = "restructuring"
	EditRewrite       = "rewrite"
)

// PreferenceObservation is one learned note about how the user edits
// generated content. Append-only: newer observations are added, older ones
// are never rewritten; readers take the most recent N.
type PreferenceObservation struct {
	ID            string `gorm:"type:varchar(36);primaryKey"`
	UserID        string `gorm:"type:varchar(100);not null;index"`
	DeliverableID string `gorm:"type:varchar(36);not null;index"`
	Binding       string `gorm:"type:varchar(20);not null;index"`

	Category     string          `gorm:"type:varchar(20);not null"`
	Note         string          `gorm:"type:text;not null"`
	EditDistance decimal.Decimal `gorm:"type:numeric(6,5);not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (PreferenceObservation) TableName() string {
	return "preference_observations"
}
