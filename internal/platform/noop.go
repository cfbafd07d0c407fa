package platform

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// NoopGateway stands in when no concrete platform clients are deployed. Reads
// return nothing, publishes are rejected as non-retryable.
type NoopGateway struct {
	Logger *zap.Logger
}

func (g *NoopGateway) ListConnections(_ context.Context, _ string) ([]Scope, error) {
	return nil, nil
}

func (g *NoopGateway) FetchRecent(_ context.Context, scope Scope, _ time.Duration) (Content, error) {
	return Content{Platform: scope.Platform, Scope: scope.Scope}, nil
}

func (g *NoopGateway) Publish(_ context.Context, dest Destination, _ string) (DeliveryReceipt, error) {
	if g.Logger != nil {
		g.Logger.Warn("publish attempted without a platform gateway",
			zap.String("platform", dest.Platform))
	}
	return DeliveryReceipt{}, &PublishError{
		Platform:  dest.Platform,
		Retryable: false,
		Reason:    "no platform gateway configured",
	}
}
