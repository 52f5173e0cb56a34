package channel

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"

	boardsync "taskboard/backend/internal/sync"
)

// Handler receives the raw payload of one delivered feed message. Delivery is
// at-least-once with no ordering guarantee; consumers must tolerate both.
type Handler func(payload []byte)

// Transport is the underlying publish/subscribe mechanism a Manager drives.
type Transport interface {
	Subscribe(ctx context.Context, feed string, handler Handler) (Handle, error)
}

type Handle interface {
	Unsubscribe() error
}

// BoardFeed names the event feed of one board so fan-out stays scoped per view.
func BoardFeed(boardID uuid.UUID) string {
	return fmt.Sprintf("board:%s", boardID)
}

// ActivityFeed names the notification feed of one user.
func ActivityFeed(userName string) string {
	return fmt.Sprintf("activity:%s", userName)
}

// RedisTransport delivers feed messages over Redis pub/sub.
type RedisTransport struct {
	rdb *redis.Client
}

func NewRedisTransport(rdb *redis.Client) *RedisTransport {
	return &RedisTransport{rdb: rdb}
}

func (t *RedisTransport) Subscribe(ctx context.Context, feed string, handler Handler) (Handle, error) {
	ps := t.rdb.Subscribe(ctx, feed)

	// Wait for the subscribe confirmation so a dead broker surfaces here
	// instead of as a silently empty feed.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to feed %q: %w", feed, err)
	}

	ch := ps.Channel()
	go func() {
		for msg := range ch {
			handler([]byte(msg.Payload))
		}
	}()

	return &redisHandle{ps: ps}, nil
}

type redisHandle struct {
	ps *redis.PubSub
}

func (h *redisHandle) Unsubscribe() error {
	return h.ps.Close()
}

// Publisher pushes task events onto feeds so every other subscribed client
// converges on the change.
type Publisher struct {
	rdb *redis.Client
}

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

func (p *Publisher) Publish(ctx context.Context, feed string, ev boardsync.TaskEvent) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}
	if err := p.rdb.Publish(ctx, feed, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to feed %q: %w", feed, err)
	}
	return nil
}
