// Package notify delivers stream change notices from the mutation API to
// connected replicas so they can pull without waiting for the poll interval.
package notify

import (
	"context"
	"sync"

	"github.com/iudanet/syncspace/pkg/api"
)

// noticeBuffer размер буфера канала подписки
const noticeBuffer = 64

// Notifier publishes and subscribes to per-workspace stream notices.
// Delivery is at-most-once: a missed notice only delays the next pull.
type Notifier interface {
	// Publish sends a notice to all subscribers of notice.WorkspaceID
	Publish(ctx context.Context, notice api.StreamNotice) error

	// Subscribe returns a subscription receiving notices of one workspace
	Subscribe(ctx context.Context, workspaceID string) (*Subscription, error)

	// Close releases the notifier resources
	Close() error
}

// Subscription represents an active notice subscription.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	notices <-chan api.StreamNotice
	cancel  func()
	once    sync.Once
}

// Notices returns the channel of notices.
// The channel is closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Notices() <-chan api.StreamNotice {
	return s.notices
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}
