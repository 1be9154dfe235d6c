package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisQueueKey  = "lyrix:queue"
	redisJobPrefix = "lyrix:job:"
)

// RedisStore is the durable Store backend. The queue is a Redis list
// (BRPOP gives at-most-once delivery to a live worker), job records are
// JSON values that expire via native TTL once terminal, and watches ride
// on pub/sub.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to the Redis at url and verifies the connection.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func jobKey(id string) string       { return redisJobPrefix + id }
func eventChannel(id string) string { return redisJobPrefix + id + ":events" }

// Enqueue stores the record and pushes the id onto the shared list.
func (r *RedisStore) Enqueue(ctx context.Context, job *Job) error {
	if err := r.write(ctx, job, 0); err != nil {
		return err
	}
	return r.client.LPush(ctx, redisQueueKey, job.ID).Err()
}

// Claim blocks on the list until a job id arrives or ctx is done.
func (r *RedisStore) Claim(ctx context.Context) (*Job, error) {
	for {
		vals, err := r.client.BRPop(ctx, time.Second, redisQueueKey).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("claim: %w", err)
		}
		job, err := r.Get(ctx, vals[1])
		if errors.Is(err, ErrNotFound) {
			continue // record expired while queued
		}
		return job, err
	}
}

// Update rewrites the record, arms the retention TTL once terminal, and
// publishes the snapshot for watchers.
func (r *RedisStore) Update(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now().UTC()

	ttl := time.Duration(0)
	if job.Terminal() {
		ttl = r.ttl
	}
	if err := r.write(ctx, job, ttl); err != nil {
		return err
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return r.client.Publish(ctx, eventChannel(job.ID), data).Err()
}

func (r *RedisStore) write(ctx context.Context, job *Job, ttl time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return r.client.Set(ctx, jobKey(job.ID), data, ttl).Err()
}

// Get returns the job record or ErrNotFound once it has expired.
func (r *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	data, err := r.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

// Watch subscribes to the job's event channel, emitting the current
// snapshot first and closing after a terminal one.
//
// Pub/sub is fire-and-forget, so the subscription must be confirmed active
// before the snapshot is read. Reading first would leave a window where a
// published update (possibly the terminal one) reaches zero subscribers
// and the watch never closes.
func (r *RedisStore) Watch(ctx context.Context, id string) (<-chan Job, error) {
	pubsub := r.client.Subscribe(ctx, eventChannel(id))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		pubsub.Close()
		return nil, err
	}

	ch := make(chan Job, 1)
	ch <- *current
	if current.Terminal() {
		pubsub.Close()
		close(ch)
		return ch, nil
	}

	lastSeen := current.UpdatedAt
	go func() {
		defer close(ch)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				var job Job
				if err := json.Unmarshal([]byte(msg.Payload), &job); err != nil {
					continue
				}
				// messages buffered between subscribe and the snapshot
				// read may predate the snapshot
				if !job.UpdatedAt.After(lastSeen) {
					continue
				}
				lastSeen = job.UpdatedAt
				select {
				case ch <- job:
				case <-ctx.Done():
					return
				}
				if job.Terminal() {
					return
				}
			}
		}
	}()
	return ch, nil
}

// Depth reports the number of queued, unclaimed jobs.
func (r *RedisStore) Depth(ctx context.Context) (int, error) {
	n, err := r.client.LLen(ctx, redisQueueKey).Result()
	return int(n), err
}

// Close releases the client connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
