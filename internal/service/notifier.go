package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// JobsChannel is the pub/sub channel carrying IDs of finished stage jobs.
const JobsChannel = "askmycourse:jobs"

// Notifier broadcasts stage job completions so schedulers wake up before their next poll.
type Notifier interface {
	Publish(ctx context.Context, jobID string) error
	// Subscribe delivers job IDs until ctx is done. The channel is closed afterwards.
	Subscribe(ctx context.Context) (<-chan string, error)
	Close() error
}

// NopNotifier relies on polling alone.
type NopNotifier struct{}

// Publish implements Notifier.
func (NopNotifier) Publish(context.Context, string) error { return nil }

// Subscribe implements Notifier. The channel never delivers.
func (NopNotifier) Subscribe(ctx context.Context) (<-chan string, error) {
	ch := make(chan string)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

// Close implements Notifier.
func (NopNotifier) Close() error { return nil }

// RedisNotifier publishes job completions over Redis pub/sub,
// letting several server processes share one job queue.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier connects to the Redis server at url (redis://host:port/db).
func NewRedisNotifier(ctx context.Context, url string) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisNotifier{client: client, channel: JobsChannel}, nil
}

// Publish implements Notifier.
func (n *RedisNotifier) Publish(ctx context.Context, jobID string) error {
	if err := n.client.Publish(ctx, n.channel, jobID).Err(); err != nil {
		return fmt.Errorf("publish job %s: %w", jobID, err)
	}
	return nil
}

// Subscribe implements Notifier.
func (n *RedisNotifier) Subscribe(ctx context.Context) (<-chan string, error) {
	pubsub := n.client.Subscribe(ctx, n.channel)
	// Wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", n.channel, err)
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				default:
					slog.Debug("dropping job notification, scheduler busy", "job_id", msg.Payload)
				}
			}
		}
	}()
	return out, nil
}

// Close implements Notifier.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
