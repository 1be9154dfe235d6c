package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrQueueFull is returned when submission would block on a full queue.
var ErrQueueFull = errors.New("queue is full")

// MemoryStore is the in-process Store used for single-instance deployments
// and tests. Terminal jobs expire after the retention TTL.
type MemoryStore struct {
	mu    sync.Mutex
	jobs  map[string]*Job
	subs  map[string][]chan Job
	queue chan string
	ttl   time.Duration
	stop  chan struct{}
	once  sync.Once
}

// NewMemoryStore creates a memory store whose terminal jobs expire after
// ttl. The queue holds at most capacity pending jobs.
func NewMemoryStore(capacity int, ttl time.Duration) *MemoryStore {
	if capacity <= 0 {
		capacity = 100
	}
	m := &MemoryStore{
		jobs:  make(map[string]*Job),
		subs:  make(map[string][]chan Job),
		queue: make(chan string, capacity),
		ttl:   ttl,
		stop:  make(chan struct{}),
	}
	go m.janitor()
	return m
}

// Enqueue records the job and makes it claimable. It never blocks.
func (m *MemoryStore) Enqueue(ctx context.Context, job *Job) error {
	m.mu.Lock()
	m.jobs[job.ID] = job.Clone()
	m.mu.Unlock()

	select {
	case m.queue <- job.ID:
		return nil
	default:
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
		return ErrQueueFull
	}
}

// Claim blocks until a queued job is available or ctx is done.
func (m *MemoryStore) Claim(ctx context.Context) (*Job, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.stop:
			return nil, errors.New("store closed")
		case id := <-m.queue:
			m.mu.Lock()
			job, ok := m.jobs[id]
			m.mu.Unlock()
			if !ok {
				continue // expired while queued
			}
			return job.Clone(), nil
		}
	}
}

// Update replaces the stored record and fans the snapshot out to watchers.
func (m *MemoryStore) Update(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now().UTC()
	snapshot := job.Clone()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.jobs[job.ID] = snapshot
	for _, ch := range m.subs[job.ID] {
		// coalesce: keep only the latest snapshot per subscriber
		select {
		case <-ch:
		default:
		}
		ch <- *snapshot.Clone()
	}
	if snapshot.Terminal() {
		for _, ch := range m.subs[job.ID] {
			close(ch)
		}
		delete(m.subs, job.ID)
	}
	return nil
}

// Get returns a snapshot of the job or ErrNotFound.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

// Watch returns a channel of job snapshots, starting with the current one.
// The channel closes after a terminal snapshot or when ctx is done.
func (m *MemoryStore) Watch(ctx context.Context, id string) (<-chan Job, error) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}

	ch := make(chan Job, 1)
	ch <- *job.Clone()
	if job.Terminal() {
		close(ch)
		m.mu.Unlock()
		return ch, nil
	}

	m.subs[id] = append(m.subs[id], ch)
	m.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			m.dropWatcher(id, ch)
		case <-m.stop:
			m.dropWatcher(id, ch)
		}
	}()
	return ch, nil
}

func (m *MemoryStore) dropWatcher(id string, ch chan Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[id]
	for i, c := range subs {
		if c == ch {
			m.subs[id] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Depth reports the number of queued, unclaimed jobs.
func (m *MemoryStore) Depth(ctx context.Context) (int, error) {
	return len(m.queue), nil
}

// Close stops the janitor and unblocks claimers.
func (m *MemoryStore) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}

// janitor expires terminal jobs past the retention TTL so later lookups
// yield not_found.
func (m *MemoryStore) janitor() {
	interval := m.ttl / 10
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-m.ttl)
			m.mu.Lock()
			for id, job := range m.jobs {
				if job.Terminal() && job.UpdatedAt.Before(cutoff) {
					delete(m.jobs, id)
				}
			}
			m.mu.Unlock()
		}
	}
}
