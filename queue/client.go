package queue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// HeartbeatTTL is how long a worker heartbeat stays valid.
const HeartbeatTTL = 30 * time.Second

// Client defines the interface for interacting with Redis-based work queues.
type Client interface {
	// Push adds a work item to the end of a queue (LPUSH).
	Push(ctx context.Context, queue string, item WorkItem) error

	// Pop removes and returns a work item from the front of a queue (BRPOP).
	// Blocks until an item is available, the timeout elapses or ctx is
	// cancelled. Returns nil, nil on timeout. A zero timeout blocks forever.
	Pop(ctx context.Context, queue string, timeout time.Duration) (*WorkItem, error)

	// Publish sends a result to a pub/sub channel.
	Publish(ctx context.Context, channel string, result Result) error

	// Subscribe creates a subscription to a pub/sub channel.
	// Returns a channel that receives results until ctx is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan Result, error)

	// RegisterGraph adds a graph to the set of graphs served by workers.
	RegisterGraph(ctx context.Context, set string, ref GraphRef) error

	// ListGraphs returns every registered graph, sorted.
	ListGraphs(ctx context.Context, set string) ([]GraphRef, error)

	// Heartbeat refreshes a health key with HeartbeatTTL.
	Heartbeat(ctx context.Context, key string) error

	// Healthy reports whether a health key is present.
	Healthy(ctx context.Context, key string) (bool, error)

	// GetWorkerCount returns the value of a worker counter.
	GetWorkerCount(ctx context.Context, key string) (int, error)

	// IncrementWorkerCount increments a worker counter.
	IncrementWorkerCount(ctx context.Context, key string) error

	// DecrementWorkerCount decrements a worker counter.
	DecrementWorkerCount(ctx context.Context, key string) error

	// Close closes the Redis connection.
	Close() error
}

// Keys derives every Redis key from a common prefix.
type Keys struct {
	Prefix string
}

// NewKeys returns the key set for prefix, defaulting to "pql".
func NewKeys(prefix string) Keys {
	if prefix == "" {
		prefix = "pql"
	}
	return Keys{Prefix: prefix}
}

// Queue is the work list.
func (k Keys) Queue() string { return formatKeyName(k.Prefix, "queue") }

// Graphs is the set of served graphs.
func (k Keys) Graphs() string { return formatKeyName(k.Prefix, "graphs") }

// Health is the worker heartbeat key.
func (k Keys) Health() string { return formatKeyName(k.Prefix, "health") }

// Workers is the running worker counter.
func (k Keys) Workers() string { return formatKeyName(k.Prefix, "workers") }

// Results is the result channel of one job.
func (k Keys) Results(jobID string) string { return formatKeyName(k.Prefix, "results", jobID) }

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// TLS configuration for secure connections
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration
}

// RedisClient implements the Client interface using go-redis/v9.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis queue client with the given options.
func NewRedisClient(opts RedisOptions) (*RedisClient, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// Push adds a work item to the end of a queue.
func (c *RedisClient) Push(ctx context.Context, queue string, item WorkItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal work item: %w", err)
	}

	if err := c.client.LPush(ctx, queue, data).Err(); err != nil {
		return fmt.Errorf("failed to push to queue %s: %w", queue, err)
	}

	return nil
}

// Pop removes and returns a work item from the front of a queue.
func (c *RedisClient) Pop(ctx context.Context, queue string, timeout time.Duration) (*WorkItem, error) {
	// BRPOP returns [queue_name, value], or redis.Nil on timeout
	result, err := c.client.BRPop(ctx, timeout, queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop from queue %s: %w", queue, err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP result length: %d", len(result))
	}

	var item WorkItem
	if err := json.Unmarshal([]byte(result[1]), &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal work item: %w", err)
	}

	return &item, nil
}

// Publish sends a result to a pub/sub channel.
func (c *RedisClient) Publish(ctx context.Context, channel string, result Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", channel, err)
	}

	return nil
}

// Subscribe creates a subscription to a pub/sub channel.
func (c *RedisClient) Subscribe(ctx context.Context, channel string) (<-chan Result, error) {
	pubsub := c.client.Subscribe(ctx, channel)

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to channel %s: %w", channel, err)
	}

	resultChan := make(chan Result)

	go func() {
		defer close(resultChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var result Result
				if err := json.Unmarshal([]byte(msg.Payload), &result); err != nil {
					continue
				}

				select {
				case resultChan <- result:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return resultChan, nil
}

// RegisterGraph adds ref to set.
func (c *RedisClient) RegisterGraph(ctx context.Context, set string, ref GraphRef) error {
	if ref.Snapshot == "" || ref.Context == "" {
		return fmt.Errorf("graph ref requires snapshot and context")
	}
	if err := c.client.SAdd(ctx, set, ref.String()).Err(); err != nil {
		return fmt.Errorf("failed to register graph %s: %w", ref, err)
	}
	return nil
}

// ListGraphs returns every graph in set, sorted. Malformed members are
// skipped.
func (c *RedisClient) ListGraphs(ctx context.Context, set string) ([]GraphRef, error) {
	members, err := c.client.SMembers(ctx, set).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}
	sort.Strings(members)

	refs := make([]GraphRef, 0, len(members))
	for _, m := range members {
		snapshot, key, ok := strings.Cut(m, "|")
		if !ok || snapshot == "" || key == "" {
			continue
		}
		refs = append(refs, GraphRef{Snapshot: snapshot, Context: key})
	}
	return refs, nil
}

// Heartbeat sets key with HeartbeatTTL.
func (c *RedisClient) Heartbeat(ctx context.Context, key string) error {
	if err := c.client.Set(ctx, key, "ok", HeartbeatTTL).Err(); err != nil {
		return fmt.Errorf("failed to set heartbeat %s: %w", key, err)
	}
	return nil
}

// Healthy reports whether key exists.
func (c *RedisClient) Healthy(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check heartbeat %s: %w", key, err)
	}
	return n > 0, nil
}

// GetWorkerCount returns the counter at key, 0 if unset.
func (c *RedisClient) GetWorkerCount(ctx context.Context, key string) (int, error) {
	countStr, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get worker count %s: %w", key, err)
	}

	count, err := strconv.Atoi(countStr)
	if err != nil {
		return 0, fmt.Errorf("invalid worker count value: %w", err)
	}

	return count, nil
}

// IncrementWorkerCount increments the counter at key.
func (c *RedisClient) IncrementWorkerCount(ctx context.Context, key string) error {
	if err := c.client.Incr(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to increment worker count %s: %w", key, err)
	}
	return nil
}

// DecrementWorkerCount decrements the counter at key.
func (c *RedisClient) DecrementWorkerCount(ctx context.Context, key string) error {
	if err := c.client.Decr(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to decrement worker count %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisClient) Close() error {
	return c.client.Close()
}

func formatKeyName(parts ...string) string {
	return strings.Join(parts, ":")
}
