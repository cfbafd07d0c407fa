package signal

import (
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/models"
)

const (
	ActionTriggerExisting      = "trigger_existing"
	ActionCreateSignalEmergent = "create_signal_emergent"
	ActionNoAction             = "no_action"
)

// Action is one orchestration step proposed by the reasoner.
type Action struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	// SignalClass selects the dedup window (e.g. meeting_prep, recurring_theme).
	SignalClass string `json:"signal_class"`
	// TargetKey is the stable dedup key for the thing the action concerns.
	TargetKey string `json:"target_key"`
	Reason    string `json:"reason,omitempty"`

	// trigger_existing.
	DeliverableID string `json:"deliverable_id,omitempty"`

	// create_signal_emergent.
	Spec *EmergentSpec `json:"spec,omitempty"`
}

// EmergentSpec describes a novel recurring need detected in the signal
// stream. The resulting deliverable is always origin=signal_emergent with a
// manual trigger; promotion to a schedule is a later, explicit user action.
type EmergentSpec struct {
	Title       string             `json:"title"`
	Binding     string             `json:"binding"`
	Topic       string             `json:"topic"`
	Sources     []models.SourceRef `json:"sources"`
	Destination models.Destination `json:"destination"`
}
