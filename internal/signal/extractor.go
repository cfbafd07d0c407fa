package signal

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Kvkthecreator/yarnnnn-sub001/internal/config"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/platform"
)

// Extractor reduces a user's connected platforms to one compact snapshot.
// A failing platform is omitted and flagged, never fatal to the snapshot.
type Extractor struct {
	Gateway     platform.Gateway
	Connections platform.ConnectionLister
	Logger      *zap.Logger
	Config      config.SignalsConfig
	Now         func() time.Time
}

func (e *Extractor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

func (e *Extractor) Snapshot(ctx context.Context, userID string) (Summary, error) {
	summary := Summary{
		UserID:     userID,
		Window:     e.Config.FetchWindow,
		CapturedAt: e.now(),
	}
	if e.Gateway == nil || e.Connections == nil {
		return summary, nil
	}

	scopes, err := e.Connections.ListConnections(ctx, userID)
	if err != nil {
		return summary, err
	}

	for _, scope := range scopes {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		content, err := e.fetchOne(ctx, scope)
		if err != nil {
			summary.Omissions = append(summary.Omissions, Omission{
				Platform: scope.Platform,
				Reason:   omissionReason(err),
			})
			if e.Logger != nil {
				e.Logger.Warn("platform fetch skipped",
					zap.String("user_id", userID),
					zap.String("platform", scope.Platform),
					zap.Error(err),
				)
			}
			continue
		}
		summary.Digests = append(summary.Digests, PlatformDigest{
			Platform:  content.Platform,
			Scope:     content.Scope,
			Summary:   content.Summary,
			ItemCount: len(content.Items),
		})
		summary.TotalItems += len(content.Items)
	}
	return summary, nil
}

func (e *Extractor) fetchOne(ctx context.Context, scope platform.Scope) (platform.Content, error) {
	timeout := e.Config.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	window := e.Config.FetchWindow
	if window <= 0 {
		window = 48 * time.Hour
	}
	return e.Gateway.FetchRecent(ctx, scope, window)
}

func omissionReason(err error) string {
	var authErr *platform.AuthError
	if errors.As(err, &authErr) {
		return "auth_expired"
	}
	var rateErr *platform.RateLimitError
	if errors.As(err, &rateErr) {
		return "rate_limited"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "fetch_error"
}
