// Package platform defines the contract this engine consumes to read from and
// write to a user's connected platforms. Concrete API clients live outside the
// engine; everything here is the interface they must satisfy plus the typed
// errors callers branch on.
package platform

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Scope identifies one readable slice of one platform for one user.
type Scope struct {
	UserID   string
	Platform string
	Scope    string
}

// ContentItem is one recent or upcoming item inside a scope.
type ContentItem struct {
	Timestamp time.Time
	Author    string
	Title     string
	Body      string
}

// Content is the structured result of a FetchRecent call.
type Content struct {
	Platform string
	Scope    string
	Items    []ContentItem
	// Summary is a short human-readable digest of Items, produced by the
	// gateway so the engine never handles raw content dumps.
	Summary string
}

// Destination is where finished content gets pushed.
type Destination struct {
	Platform string
	Target   string
	Format   string
}

// DeliveryReceipt acknowledges a successful publish.
type DeliveryReceipt struct {
	Platform    string
	Target      string
	ExternalRef string
	DeliveredAt time.Time
}

// Gateway is the uniform read/write interface over heterogeneous platforms.
type Gateway interface {
	// FetchRecent returns a bounded window of recent/upcoming items for a
	// scope. An expired credential yields *AuthError, never a panic or a
	// generic error.
	FetchRecent(ctx context.Context, scope Scope, window time.Duration) (Content, error)

	// Publish pushes finished content. Failures are *PublishError so callers
	// can distinguish retryable network faults from permission rejections.
	Publish(ctx context.Context, dest Destination, content string) (DeliveryReceipt, error)
}

// ConnectionLister enumerates the scopes a user has connected. Satisfied by
// the same external gateway component.
type ConnectionLister interface {
	ListConnections(ctx context.Context, userID string) ([]Scope, error)
}

// FullGateway is what a deployable gateway component provides.
type FullGateway interface {
	Gateway
	ConnectionLister
}

// AuthError indicates an expired or invalid credential for a platform.
type AuthError struct {
	Platform string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("platform %s: credential expired or invalid", e.Platform)
}

// RateLimitError indicates the platform refused the call for now.
type RateLimitError struct {
	Platform   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("platform %s: rate limited", e.Platform)
}

// PublishError wraps a failed publish. Retryable is true for network-level
// faults and false for permission or content rejections.
type PublishError struct {
	Platform  string
	Retryable bool
	Reason    string
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s failed: %s", e.Platform, e.Reason)
}

// IsRetryablePublish reports whether err is a publish failure worth one more
// attempt.
func IsRetryablePublish(err error) bool {
	var pe *PublishError
	return errors.As(err, &pe) && pe.Retryable
}
