package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"lyrix/internal/types"
)

func testJob(id string) *Job {
	return NewJob(id, "song.mp3", "/tmp/song.mp3", types.Options{})
}

// TestMemoryStoreLifecycle walks a job from enqueue to done.
func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemoryStore(10, time.Minute)
	defer store.Close()
	ctx := context.Background()

	job := testJob("job-1")
	if err := store.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	got, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != types.StateQueued {
		t.Fatalf("state = %s, want queued", got.State)
	}

	claimed, err := store.Claim(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.ID != "job-1" {
		t.Fatalf("claimed %s, want job-1", claimed.ID)
	}

	claimed.State = types.StateDone
	claimed.Stage = types.StageDone
	claimed.Progress = 100
	claimed.Result = &types.Result{Lyrics: "la la"}
	if err := store.Update(ctx, claimed); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err = store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.Result == nil || got.Result.Lyrics != "la la" {
		t.Fatalf("result not stored: %+v", got)
	}
	if got.Error != nil {
		t.Fatal("result and error must be mutually exclusive")
	}
}

// TestMemoryStoreNotFound checks unknown ids yield ErrNotFound.
func TestMemoryStoreNotFound(t *testing.T) {
	store := NewMemoryStore(10, time.Minute)
	defer store.Close()

	if _, err := store.Get(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := store.Watch(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("watch err = %v, want ErrNotFound", err)
	}
}

// TestMemoryStoreQueueFull checks submission never blocks on a full queue.
func TestMemoryStoreQueueFull(t *testing.T) {
	store := NewMemoryStore(1, time.Minute)
	defer store.Close()
	ctx := context.Background()

	if err := store.Enqueue(ctx, testJob("a")); err != nil {
		t.Fatalf("enqueue a: %v", err)
	}
	if err := store.Enqueue(ctx, testJob("b")); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	// the rejected job must not linger as a phantom record
	if _, err := store.Get(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rejected job still visible: %v", err)
	}
}

// TestMemoryStoreClaimHonorsContext checks a blocked claim unblocks on
// cancellation.
func TestMemoryStoreClaimHonorsContext(t *testing.T) {
	store := NewMemoryStore(10, time.Minute)
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := store.Claim(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

// TestMemoryStoreWatch checks watchers see every state change and the
// channel closes after the terminal snapshot.
func TestMemoryStoreWatch(t *testing.T) {
	store := NewMemoryStore(10, time.Minute)
	defer store.Close()
	ctx := context.Background()

	job := testJob("job-w")
	if err := store.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	updates, err := store.Watch(ctx, "job-w")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	var states []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for snap := range updates {
			states = append(states, snap.State)
		}
	}()

	job.State = types.StateRunning
	job.Stage = types.StageValidated
	job.Progress = 5
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("update running: %v", err)
	}
	time.Sleep(20 * time.Millisecond) // let the watcher drain before terminal

	job.State = types.StateDone
	job.Progress = 100
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("update done: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch channel never closed after terminal state")
	}

	if len(states) == 0 || states[len(states)-1] != types.StateDone {
		t.Fatalf("states = %v, want terminal done last", states)
	}
	for i := 1; i < len(states); i++ {
		if states[i-1] == types.StateDone {
			t.Fatalf("snapshot after terminal state: %v", states)
		}
	}
}

// TestMemoryStoreWatchTerminalJob: watching an already-finished job yields
// one snapshot and an immediate close.
func TestMemoryStoreWatchTerminalJob(t *testing.T) {
	store := NewMemoryStore(10, time.Minute)
	defer store.Close()
	ctx := context.Background()

	job := testJob("job-t")
	if err := store.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job.State = types.StateError
	job.Error = &types.JobError{Code: types.CodeExtractionFailed, Message: "boom"}
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("update: %v", err)
	}

	updates, err := store.Watch(ctx, "job-t")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	snap, ok := <-updates
	if !ok {
		t.Fatal("expected one snapshot")
	}
	if snap.State != types.StateError || snap.Error == nil {
		t.Fatalf("snapshot = %+v", snap)
	}
	if _, ok := <-updates; ok {
		t.Fatal("expected closed channel after terminal snapshot")
	}
}

// TestMemoryStoreExpiry: a completed job becomes not_found after the
// retention TTL, which is a storage-expiry contract, not an error.
func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(10, 300*time.Millisecond)
	defer store.Close()
	ctx := context.Background()

	job := testJob("job-e")
	if err := store.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job.State = types.StateDone
	job.Progress = 100
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("update: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		_, err := store.Get(ctx, "job-e")
		if errors.Is(err, ErrNotFound) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("job never expired")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// TestMemoryStoreDepth checks the queue depth gauge.
func TestMemoryStoreDepth(t *testing.T) {
	store := NewMemoryStore(10, time.Minute)
	defer store.Close()
	ctx := context.Background()

	for _, id := range []string{"d1", "d2", "d3"} {
		if err := store.Enqueue(ctx, testJob(id)); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	depth, err := store.Depth(ctx)
	if err != nil || depth != 3 {
		t.Fatalf("depth = %d (%v), want 3", depth, err)
	}

	if _, err := store.Claim(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}
	depth, _ = store.Depth(ctx)
	if depth != 2 {
		t.Fatalf("depth after claim = %d, want 2", depth)
	}
}
