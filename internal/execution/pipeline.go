// Package execution runs one deliverable through context gathering,
// generation, and staging. Exactly one generating version can exist per
// deliverable; every path out of Execute leaves the version staged or failed.
package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/Kvkthecreator/yarnnnn-sub001/internal/config"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/llm"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/models"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/notify"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/repository"
)

// ErrNoContext marks an execution that gathered nothing usable.
var ErrNoContext = errors.New("no context gathered")

type Pipeline struct {
	Repo       repository.Repository
	Gen        llm.Generator
	Strategies *StrategySet
	Notifier   notify.Notifier
	Logger     *zap.Logger
	Config     config.ExecutionConfig
	// RecentPreferences caps the learned-preference notes fed into the prompt.
	RecentPreferences int
	Now               func() time.Time
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

// Execute produces one new version for the deliverable. The returned version
// reflects its final state; a non-nil error explains a failed one. A second
// concurrent call for the same deliverable gets repository.ErrExecutionInFlight.
func (p *Pipeline) Execute(ctx context.Context, d *models.Deliverable) (*models.DeliverableVersion, error) {
	if d == nil {
		return nil, fmt.Errorf("deliverable is required")
	}

	version := &models.DeliverableVersion{
		ID:            uuid.NewString(),
		DeliverableID: d.ID,
		Status:        models.VersionGenerating,
	}
	if err := p.Repo.CreateGeneratingVersion(ctx, version); err != nil {
		return nil, err
	}

	content, digest, strategyName, err := p.produce(ctx, d)
	if err != nil {
		reason := err.Error()
		resolvedAt := p.now()
		if markErr := p.Repo.MarkVersionFailed(ctx, version.ID, reason, resolvedAt); markErr != nil {
			return version, markErr
		}
		version.Status = models.VersionFailed
		version.ErrorDetail = &reason
		version.ResolvedAt = &resolvedAt
		p.logActivity(ctx, d.UserID, models.ActivityVersionFailed, version.ID,
			fmt.Sprintf("execution of %q failed: %s", d.Title, reason))
		// Failures notify regardless of governance.
		if p.Notifier != nil {
			p.Notifier.Notify(ctx, d.UserID,
				fmt.Sprintf("execution of %q failed: %s", d.Title, reason),
				notify.UrgencyAlert)
		}
		return version, err
	}

	if err := p.Repo.MarkVersionStaged(ctx, version.ID, content, digest, strategyName); err != nil {
		return version, err
	}
	version.Status = models.VersionStaged
	version.Content = content
	version.ContextDigest = digest
	version.StrategyName = strategyName
	p.logActivity(ctx, d.UserID, models.ActivityVersionStaged, version.ID,
		fmt.Sprintf("staged new version of %q", d.Title))
	return version, nil
}

func (p *Pipeline) produce(ctx context.Context, d *models.Deliverable) (string, datatypes.JSON, string, error) {
	var sources []models.SourceRef
	if err := json.Unmarshal(d.Sources, &sources); err != nil {
		return "", nil, "", fmt.Errorf("decode sources: %w", err)
	}

	strategy, ok := p.Strategies.ForBinding(d.Binding)
	if !ok {
		return "", nil, "", fmt.Errorf("no strategy for binding %q", d.Binding)
	}

	result, err := strategy.Gather(ctx, *d, sources, p.windowFor(d))
	if err != nil {
		return "", nil, strategy.Name(), fmt.Errorf("gather context: %w", err)
	}
	if result.Items == 0 {
		return "", nil, strategy.Name(), ErrNoContext
	}

	prefs, err := p.loadPreferences(ctx, d)
	if err != nil {
		return "", nil, strategy.Name(), err
	}

	var dest models.Destination
	_ = json.Unmarshal(d.Destination, &dest)

	prompt := buildPrompt(d, dest, result, prefs)
	content, err := p.generate(ctx, prompt)
	if err != nil {
		return "", nil, strategy.Name(), err
	}

	digest, err := json.Marshal(result)
	if err != nil {
		return "", nil, strategy.Name(), err
	}
	return content, datatypes.JSON(digest), strategy.Name(), nil
}

// generate calls the model, retrying exactly once after a backoff. An empty
// body counts as a failed attempt.
func (p *Pipeline) generate(ctx context.Context, prompt string) (string, error) {
	content, err := p.generateOnce(ctx, prompt)
	if err == nil {
		return content, nil
	}
	if p.Logger != nil {
		p.Logger.Warn("generation attempt failed, retrying once", zap.Error(err))
	}

	backoff := p.Config.RetryBackoff
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(backoff):
	}
	return p.generateOnce(ctx, prompt)
}

func (p *Pipeline) generateOnce(ctx context.Context, prompt string) (string, error) {
	content, err := p.Gen.GenerateText(ctx, prompt)
	if err != nil {
		return "", err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: empty artifact", llm.ErrMalformedOutput)
	}
	return content, nil
}

// loadPreferences reads the most recent observations for this deliverable
// first, topping up with same-binding observations from other deliverables.
func (p *Pipeline) loadPreferences(ctx context.Context, d *models.Deliverable) ([]models.PreferenceObservation, error) {
	limit := p.RecentPreferences
	if limit <= 0 {
		limit = 10
	}
	prefs, err := p.Repo.ListRecentPreferences(ctx, repository.ListPreferencesParams{
		UserID:        &d.UserID,
		DeliverableID: &d.ID,
		Limit:         limit,
	})
	if err != nil {
		return nil, err
	}
	if len(prefs) < limit {
		more, err := p.Repo.ListRecentPreferences(ctx, repository.ListPreferencesParams{
			UserID:  &d.UserID,
			Binding: &d.Binding,
			Limit:   limit - len(prefs),
		})
		if err != nil {
			return nil, err
		}
		for _, observation := range more {
			if observation.DeliverableID != d.ID {
				prefs = append(prefs, observation)
			}
		}
	}
	return prefs, nil
}

func (p *Pipeline) windowFor(d *models.Deliverable) time.Duration {
	pick := func(window, fallback time.Duration) time.Duration {
		if window > 0 {
			return window
		}
		return fallback
	}
	if d.TriggerType != models.TriggerSchedule {
		return pick(p.Config.OnDemandWindow, 48*time.Hour)
	}
	switch d.Frequency {
	case models.FrequencyWeekly, models.FrequencyMonthly:
		return pick(p.Config.WeeklyWindow, 168*time.Hour)
	default:
		return pick(p.Config.DailyWindow, 24*time.Hour)
	}
}

func buildPrompt(d *models.Deliverable, dest models.Destination, result GatherResult, prefs []models.PreferenceObservation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Produce the deliverable %q.\n", d.Title)
	if dest.Format != "" {
		fmt.Fprintf(&b, "Output format: %s (destination: %s %s).\n", dest.Format, dest.Platform, dest.Target)
	}

	b.WriteString("\n## Context\n")
	for _, section := range result.Sections {
		fmt.Fprintf(&b, "### %s / %s (%d items)\n%s\n", section.Platform, section.Scope, section.ItemCount, section.Summary)
	}
	if len(result.Omissions) > 0 {
		b.WriteString("\nUnavailable sources (note gaps where relevant): ")
		b.WriteString(strings.Join(result.Omissions, ", "))
		b.WriteString("\n")
	}

	if len(prefs) > 0 {
		b.WriteString("\n## Learned preferences (most recent first, honor all)\n")
		for _, p := range prefs {
			fmt.Fprintf(&b, "- %s\n", p.Note)
		}
	}

	b.WriteString("\nWrite the finished artifact only, no preamble or commentary.\n")
	return b.String()
}

func (p *Pipeline) logActivity(ctx context.Context, userID, eventType, refID, summary string) {
	err := p.Repo.InsertActivity(ctx, &models.ActivityLog{
		UserID:    userID,
		EventType: eventType,
		RefID:     refID,
		Summary:   summary,
		CreatedAt: p.now(),
	})
	if err != nil && p.Logger != nil {
		p.Logger.Warn("activity log write failed", zap.String("event", eventType), zap.Error(err))
	}
}
