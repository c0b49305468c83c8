package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/iudanet/syncspace/pkg/api"
)

// Channel returns the Redis Pub/Sub channel of a workspace
func Channel(workspaceID string) string {
	return "syncspace:" + workspaceID + ":stream_notices"
}

// RedisNotifier fans notices out through Redis Pub/Sub, so every server
// instance sharing the Redis sees every notice.
type RedisNotifier struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewRedisNotifier creates a notifier on top of an existing Redis client
func NewRedisNotifier(rdb *redis.Client, logger *slog.Logger) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, logger: logger}
}

// Publish sends a notice to the workspace channel
func (n *RedisNotifier) Publish(ctx context.Context, notice api.StreamNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("failed to marshal notice: %w", err)
	}

	if err := n.rdb.Publish(ctx, Channel(notice.WorkspaceID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish notice: %w", err)
	}

	return nil
}

// Subscribe subscribes to the workspace channel. It returns after Redis has
// confirmed the subscription, so notices published afterwards are delivered.
//
// Slow subscribers lose notices instead of blocking the Redis connection.
func (n *RedisNotifier) Subscribe(ctx context.Context, workspaceID string) (*Subscription, error) {
	pubsub := n.rdb.Subscribe(ctx, Channel(workspaceID))

	// Ждём подтверждения подписки
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", workspaceID, err)
	}

	notices := make(chan api.StreamNotice, noticeBuffer)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(notices)
		defer func() {
			_ = pubsub.Close()
		}()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var notice api.StreamNotice
				if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil {
					n.logger.Warn("Skipping malformed stream notice",
						"channel", msg.Channel,
						"error", err,
					)
					continue
				}

				select {
				case notices <- notice:
				default:
					n.logger.Debug("Dropping stream notice for slow subscriber",
						"workspace_id", workspaceID,
						"stream_key", notice.StreamKey,
					)
				}
			}
		}
	}()

	return &Subscription{notices: notices, cancel: cancel}, nil
}

// Close closes the Redis client
func (n *RedisNotifier) Close() error {
	return n.rdb.Close()
}
