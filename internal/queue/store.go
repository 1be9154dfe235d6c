package queue

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a job id is unknown or its record has
// expired past the retention window.
var ErrNotFound = errors.New("job not found")

// Store is the shared queue and job-record state. It is passed explicitly
// to everything that needs it so tests can substitute the in-memory
// implementation without touching network or disk.
//
// Claim guarantees at-most-once delivery of each queued job to a live
// worker. Watch streams snapshots of a single job as it changes; the
// channel is closed once a terminal snapshot has been delivered.
type Store interface {
	Enqueue(ctx context.Context, job *Job) error
	Claim(ctx context.Context) (*Job, error)
	Update(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Watch(ctx context.Context, id string) (<-chan Job, error)
	Depth(ctx context.Context) (int, error)
	Close() error
}
