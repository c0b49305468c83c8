package notify

import (
	"context"
	"sync"

	"github.com/iudanet/syncspace/pkg/api"
)

// LocalNotifier fans notices out in process. It is used when the server runs
// without Redis.
type LocalNotifier struct {
	subscribers map[string]map[chan api.StreamNotice]struct{}
	mu          sync.RWMutex
}

// NewLocalNotifier creates an in-process notifier
func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{
		subscribers: make(map[string]map[chan api.StreamNotice]struct{}),
	}
}

// Publish delivers the notice to current subscribers without blocking
func (n *LocalNotifier) Publish(_ context.Context, notice api.StreamNotice) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.subscribers[notice.WorkspaceID] {
		select {
		case ch <- notice:
		default:
		}
	}

	return nil
}

// Subscribe registers a subscriber for the workspace
func (n *LocalNotifier) Subscribe(ctx context.Context, workspaceID string) (*Subscription, error) {
	ch := make(chan api.StreamNotice, noticeBuffer)

	n.mu.Lock()
	if n.subscribers[workspaceID] == nil {
		n.subscribers[workspaceID] = make(map[chan api.StreamNotice]struct{})
	}
	n.subscribers[workspaceID][ch] = struct{}{}
	n.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	remove := func() {
		cancel()
		n.mu.Lock()
		delete(n.subscribers[workspaceID], ch)
		if len(n.subscribers[workspaceID]) == 0 {
			delete(n.subscribers, workspaceID)
		}
		close(ch)
		n.mu.Unlock()
	}

	sub := &Subscription{notices: ch, cancel: remove}

	go func() {
		<-subCtx.Done()
		_ = sub.Close()
	}()

	return sub, nil
}

// Close is a no-op
func (n *LocalNotifier) Close() error {
	return nil
}
