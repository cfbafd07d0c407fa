// Package delivery applies the governance policy to staged versions and moves
// them to their destination. Governance decides who pushes the staged→delivered
// edge; the state machine itself never grows extra states for review flows.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kvkthecreator/yarnnnn-sub001/internal/config"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/feedback"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/models"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/notify"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/platform"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/registry"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/repository"
)

var (
	ErrVersionNotFound = errors.New("version not found")
	ErrNotStaged       = errors.New("version is not staged")
)

// rejectedReason is the reserved failure detail for user rejections.
const rejectedReason = "rejected by user"

type Service struct {
	Repo     repository.Repository
	Gateway  platform.Gateway
	Notifier notify.Notifier
	Feedback *feedback.Engine
	Registry *registry.Service
	Logger   *zap.Logger
	Config   config.DeliveryConfig
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Dispatch routes a freshly staged version according to the deliverable's
// governance. Manual governance leaves it staged and asks the user to review;
// the auto modes publish immediately.
func (s *Service) Dispatch(ctx context.Context, d *models.Deliverable, version *models.DeliverableVersion) error {
	if d == nil || version == nil {
		return fmt.Errorf("deliverable and version are required")
	}
	if version.Status != models.VersionStaged {
		return ErrNotStaged
	}

	switch d.Governance {
	case models.GovernanceManual:
		s.notify(ctx, d.UserID,
			fmt.Sprintf("%q has a new version ready for review", d.Title),
			notify.UrgencyAction)
		return nil
	case models.GovernanceSemiAuto:
		err := s.deliver(ctx, d, version, version.Content)
		if err == nil {
			s.notify(ctx, d.UserID,
				fmt.Sprintf("%q was delivered automatically", d.Title),
				notify.UrgencyInfo)
		}
		return err
	case models.GovernanceFullAuto:
		// Silent on success; failures still notify via deliver.
		return s.deliver(ctx, d, version, version.Content)
	default:
		return fmt.Errorf("unknown governance %q", d.Governance)
	}
}

// Approve is the user's review verdict on a staged version. finalContent is
// what actually ships; when it differs from the generated content the edit is
// recorded as preference memory before publishing.
func (s *Service) Approve(ctx context.Context, versionID, finalContent string) (*models.DeliverableVersion, error) {
	version, d, err := s.load(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if version.Status != models.VersionStaged {
		return nil, ErrNotStaged
	}

	content := finalContent
	if strings.TrimSpace(content) == "" {
		content = version.Content
	}
	if content != version.Content && s.Feedback != nil {
		if _, err := s.Feedback.Record(ctx, d, version, content); err != nil {
			return nil, err
		}
	}

	if err := s.deliver(ctx, d, version, content); err != nil {
		return version, err
	}
	return s.Repo.GetVersionByID(ctx, versionID)
}

// Reject discards a staged version. The version is recorded as failed with a
// reserved reason; a one-shot deliverable archives with it.
func (s *Service) Reject(ctx context.Context, versionID string) error {
	version, d, err := s.load(ctx, versionID)
	if err != nil {
		return err
	}
	if version.Status != models.VersionStaged {
		return ErrNotStaged
	}

	resolvedAt := s.now()
	if err := s.Repo.MarkVersionFailed(ctx, versionID, rejectedReason, resolvedAt); err != nil {
		return err
	}
	s.logActivity(ctx, d.UserID, models.ActivityVersionRejected, versionID,
		fmt.Sprintf("user rejected staged version of %q", d.Title))
	return s.resolveOneShot(ctx, d)
}

// deliver publishes content and records the terminal state. A retryable
// publish fault gets exactly one more attempt; any failure notifies the user
// regardless of governance.
func (s *Service) deliver(ctx context.Context, d *models.Deliverable, version *models.DeliverableVersion, content string) error {
	var dest models.Destination
	if err := json.Unmarshal(d.Destination, &dest); err != nil {
		return s.fail(ctx, d, version, fmt.Sprintf("decode destination: %v", err))
	}

	receipt, err := s.publish(ctx, dest, content)
	if err != nil {
		return s.fail(ctx, d, version, err.Error())
	}

	resolvedAt := s.now()
	if err := s.Repo.MarkVersionDelivered(ctx, version.ID, resolvedAt); err != nil {
		return err
	}
	version.Status = models.VersionDelivered
	version.ResolvedAt = &resolvedAt
	s.logActivity(ctx, d.UserID, models.ActivityVersionDelivered, version.ID,
		fmt.Sprintf("delivered %q to %s %s (ref %s)", d.Title, receipt.Platform, receipt.Target, receipt.ExternalRef))
	return s.resolveOneShot(ctx, d)
}

func (s *Service) publish(ctx context.Context, dest models.Destination, content string) (platform.DeliveryReceipt, error) {
	timeout := s.Config.PublishTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	target := platform.Destination{Platform: dest.Platform, Target: dest.Target, Format: dest.Format}

	attempt := func() (platform.DeliveryReceipt, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return s.Gateway.Publish(ctx, target, content)
	}

	receipt, err := attempt()
	if err != nil && platform.IsRetryablePublish(err) {
		if s.Logger != nil {
			s.Logger.Warn("publish failed, retrying once",
				zap.String("platform", dest.Platform), zap.Error(err))
		}
		receipt, err = attempt()
	}
	return receipt, err
}

func (s *Service) fail(ctx context.Context, d *models.Deliverable, version *models.DeliverableVersion, reason string) error {
	resolvedAt := s.now()
	if err := s.Repo.MarkVersionFailed(ctx, version.ID, reason, resolvedAt); err != nil {
		return err
	}
	version.Status = models.VersionFailed
	version.ErrorDetail = &reason
	version.ResolvedAt = &resolvedAt
	s.logActivity(ctx, d.UserID, models.ActivityVersionFailed, version.ID,
		fmt.Sprintf("delivery of %q failed: %s", d.Title, reason))
	s.notify(ctx, d.UserID,
		fmt.Sprintf("delivery of %q failed: %s", d.Title, reason),
		notify.UrgencyAlert)
	if err := s.resolveOneShot(ctx, d); err != nil {
		return err
	}
	return fmt.Errorf("deliver %s: %s", version.ID, reason)
}

func (s *Service) resolveOneShot(ctx context.Context, d *models.Deliverable) error {
	if s.Registry == nil {
		return nil
	}
	return s.Registry.ResolveOneShot(ctx, d)
}

func (s *Service) load(ctx context.Context, versionID string) (*models.DeliverableVersion, *models.Deliverable, error) {
	version, err := s.Repo.GetVersionByID(ctx, versionID)
	if err != nil {
		return nil, nil, err
	}
	if version == nil {
		return nil, nil, ErrVersionNotFound
	}
	d, err := s.Repo.GetDeliverableByID(ctx, version.DeliverableID)
	if err != nil {
		return nil, nil, err
	}
	if d == nil {
		return nil, nil, registry.ErrNotFound
	}
	return version, d, nil
}

func (s *Service) notify(ctx context.Context, userID, message, urgency string) {
	if s.Notifier == nil {
		return
	}
	s.Notifier.Notify(ctx, userID, message, urgency)
}

func (s *Service) logActivity(ctx context.Context, userID, eventType, refID, summary string) {
	err := s.Repo.InsertActivity(ctx, &models.ActivityLog{
		UserID:    userID,
		EventType: eventType,
		RefID:     refID,
		Summary:   summary,
		CreatedAt: s.now(),
	})
	if err != nil && s.Logger != nil {
		s.Logger.Warn("activity log write failed", zap.String("event", eventType), zap.Error(err))
	}
}
