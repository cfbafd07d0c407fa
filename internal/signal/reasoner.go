package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/Kvkthecreator/yarnnnn-sub001/internal/config"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/llm"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/models"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/repository"
)

// Reasoner turns one snapshot plus durable memory into zero or more
// orchestration actions. One LLM invocation per user per tick; every failure
// mode collapses to "do nothing" rather than crashing the scheduler.
type Reasoner struct {
	Repo   repository.Repository
	Gen    llm.Generator
	Logger *zap.Logger
	Config config.SignalsConfig
	Now    func() time.Time
}

func (r *Reasoner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

// Decide returns the ordered, policy-filtered action list for one user.
// A nil result means no action this tick.
func (r *Reasoner) Decide(ctx context.Context, summary Summary) ([]Action, error) {
	if r == nil || r.Repo == nil {
		return nil, nil
	}

	// Too little signal to reason about: skip the LLM call entirely.
	minItems := r.Config.MinContentItems
	if minItems <= 0 {
		minItems = 3
	}
	if summary.TotalItems < minItems {
		if r.Logger != nil {
			r.Logger.Debug("signal volume below sufficiency threshold",
				zap.String("user_id", summary.UserID),
				zap.Int("items", summary.TotalItems),
			)
		}
		return nil, nil
	}

	if r.Gen == nil {
		return nil, nil
	}

	deliverables, err := r.Repo.ListActiveDeliverablesByUser(ctx, summary.UserID)
	if err != nil {
		return nil, err
	}
	prefs, err := r.Repo.ListRecentPreferences(ctx, repository.ListPreferencesParams{
		UserID: &summary.UserID,
		Limit:  10,
	})
	if err != nil {
		return nil, err
	}
	activityDays := r.Config.ActivityDays
	if activityDays <= 0 {
		activityDays = 7
	}
	since := r.now().AddDate(0, 0, -activityDays)
	activity, err := r.Repo.ListActivity(ctx, repository.ListActivityParams{
		UserID: &summary.UserID,
		Since:  &since,
		Limit:  100,
	})
	if err != nil {
		return nil, err
	}

	raw, err := r.Gen.GenerateJSON(ctx, r.buildPrompt(summary, deliverables, prefs, activity))
	if err != nil {
		// Fail closed: a broken reasoning call must never fail the tick.
		if r.Logger != nil {
			r.Logger.Warn("reasoner call failed, treating as no_action",
				zap.String("user_id", summary.UserID), zap.Error(err))
		}
		return nil, nil
	}

	actions, ok := r.parseActions(summary.UserID, raw)
	if !ok {
		return nil, nil
	}

	return r.applyPolicy(ctx, summary.UserID, actions, deliverables)
}

func (r *Reasoner) parseActions(userID, raw string) ([]Action, bool) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(actionListSchema),
		gojsonschema.NewStringLoader(raw),
	)
	if err != nil || !result.Valid() {
		if r.Logger != nil {
			fields := []zap.Field{zap.String("user_id", userID)}
			if err != nil {
				fields = append(fields, zap.Error(err))
			} else {
				fields = append(fields, zap.Int("violations", len(result.Errors())))
			}
			r.Logger.Warn("reasoner output failed schema validation, treating as no_action", fields...)
		}
		return nil, false
	}
	var parsed struct {
		Actions []Action `json:"actions"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, false
	}
	return parsed.Actions, true
}

// applyPolicy enforces the decision policy: confidence floor, per-class dedup
// windows from the activity log, and the overlap preference for advancing an
// existing deliverable over creating a duplicate.
func (r *Reasoner) applyPolicy(ctx context.Context, userID string, actions []Action, deliverables []models.Deliverable) ([]Action, error) {
	minConfidence := r.Config.MinConfidence
	if minConfidence <= 0 {
		minConfidence = 0.6
	}

	var kept []Action
	for _, action := range actions {
		if action.Type == ActionNoAction {
			continue
		}
		if action.Confidence < minConfidence {
			continue
		}

		window := r.Config.DedupWindow(action.SignalClass)
		seen, err := r.Repo.HasRecentActivity(ctx, userID, models.ActivitySignalAction,
			dedupRef(action), r.now().Add(-window))
		if err != nil {
			return nil, err
		}
		if seen {
			continue
		}

		switch action.Type {
		case ActionTriggerExisting:
			// Triggering is pure scheduling, so only schedule-triggered
			// targets qualify.
			target := findDeliverable(deliverables, action.DeliverableID)
			if target == nil || target.TriggerType != models.TriggerSchedule {
				continue
			}
		case ActionCreateSignalEmergent:
			if action.Spec == nil {
				continue
			}
			if existing := r.findOverlap(*action.Spec, deliverables); existing != nil {
				if existing.TriggerType == models.TriggerSchedule {
					// An existing recurring deliverable already covers this
					// ground; advance it instead of creating a duplicate.
					action = Action{
						Type:          ActionTriggerExisting,
						Confidence:    action.Confidence,
						SignalClass:   action.SignalClass,
						TargetKey:     action.TargetKey,
						Reason:        "covered by existing deliverable " + existing.ID,
						DeliverableID: existing.ID,
					}
				} else {
					// A one-shot already in flight for the same need.
					continue
				}
			}
		default:
			continue
		}
		kept = append(kept, action)
	}
	return kept, nil
}

// findOverlap looks for an active deliverable already targeting the same
// sources or topic. For schedule-triggered candidates the next run must fall
// inside the lookahead window to count as coverage.
func (r *Reasoner) findOverlap(spec EmergentSpec, deliverables []models.Deliverable) *models.Deliverable {
	lookahead := r.Config.Lookahead
	if lookahead <= 0 {
		lookahead = 72 * time.Hour
	}
	horizon := r.now().Add(lookahead)
	for i := range deliverables {
		d := &deliverables[i]
		if d.TriggerType == models.TriggerSchedule {
			if d.NextRunAt == nil || d.NextRunAt.After(horizon) {
				continue
			}
		}
		if overlapsSources(spec.Sources, d.Sources) || overlapsTopic(spec, *d) {
			return d
		}
	}
	return nil
}

func overlapsSources(specSources []models.SourceRef, existing []byte) bool {
	var current []models.SourceRef
	if err := json.Unmarshal(existing, &current); err != nil {
		return false
	}
	for _, a := range specSources {
		for _, b := range current {
			if strings.EqualFold(a.Platform, b.Platform) && strings.EqualFold(a.Scope, b.Scope) {
				return true
			}
		}
	}
	return false
}

func overlapsTopic(spec EmergentSpec, d models.Deliverable) bool {
	topic := strings.ToLower(strings.TrimSpace(spec.Topic))
	if topic == "" {
		return false
	}
	return strings.Contains(strings.ToLower(d.Title), topic)
}

func findDeliverable(items []models.Deliverable, id string) *models.Deliverable {
	for i := range items {
		if items[i].ID == id {
			return &items[i]
		}
	}
	return nil
}

// dedupRef is the activity-log ref recorded for an applied action; the same
// class+target inside its window suppresses re-proposal.
func dedupRef(action Action) string {
	return action.SignalClass + "|" + action.TargetKey
}

// DedupRef exposes the dedup key so the scheduler logs applied actions under
// the exact ref the policy checks.
func DedupRef(action Action) string {
	return dedupRef(action)
}

func (r *Reasoner) buildPrompt(summary Summary, deliverables []models.Deliverable, prefs []models.PreferenceObservation, activity []models.ActivityLog) string {
	var b strings.Builder
	b.WriteString("You orchestrate recurring work deliverables for one user.\n")
	b.WriteString("Given the activity snapshot below, decide whether to advance an existing deliverable, propose a new one, or do nothing.\n\n")

	b.WriteString("## Snapshot\n")
	for _, digest := range summary.Digests {
		fmt.Fprintf(&b, "- [%s/%s] %d items: %s\n", digest.Platform, digest.Scope, digest.ItemCount, digest.Summary)
	}
	for _, omission := range summary.Omissions {
		fmt.Fprintf(&b, "- [%s] unavailable (%s)\n", omission.Platform, omission.Reason)
	}

	b.WriteString("\n## Active deliverables\n")
	if len(deliverables) == 0 {
		b.WriteString("(none)\n")
	}
	for _, d := range deliverables {
		next := "manual"
		if d.NextRunAt != nil {
			next = d.NextRunAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "- id=%s title=%q binding=%s next_run=%s\n", d.ID, d.Title, d.Binding, next)
	}

	if len(prefs) > 0 {
		b.WriteString("\n## User preferences\n")
		for _, p := range prefs {
			fmt.Fprintf(&b, "- %s\n", p.Note)
		}
	}

	if len(activity) > 0 {
		b.WriteString("\n## Recent engine activity\n")
		for _, a := range activity {
			fmt.Fprintf(&b, "- %s %s: %s\n", a.CreatedAt.UTC().Format("2006-01-02"), a.EventType, a.Summary)
		}
	}

	b.WriteString("\nRespond with JSON matching this schema exactly:\n")
	b.WriteString(actionListSchema)
	b.WriteString("\nRules: use trigger_existing with a deliverable_id from the list above when an existing deliverable already covers the need; ")
	b.WriteString("use create_signal_emergent with a full spec only for a genuinely new recurring need; ")
	b.WriteString("set confidence honestly in [0,1]; signal_class is meeting_prep for time-sensitive preparation and recurring_theme for slower-moving needs; ")
	b.WriteString("target_key is a short stable identifier for the underlying need.\n")
	return b.String()
}
