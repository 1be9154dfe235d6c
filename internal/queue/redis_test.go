package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"lyrix/internal/types"
)

// newRedisTestStore connects to the Redis named by REDIS_TEST_URL, or skips.
func newRedisTestStore(t *testing.T) *RedisStore {
	t.Helper()
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	store, err := NewRedisStore(context.Background(), url, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestRedisWatchSeesTerminalUpdate races an update against watch setup: the
// subscription is confirmed before the snapshot is read, so a terminal
// update published at any point after Watch returns must reach the watcher
// and close the stream.
func TestRedisWatchSeesTerminalUpdate(t *testing.T) {
	store := newRedisTestStore(t)
	ctx := context.Background()

	job := NewJob("watch-terminal-race", "song.mp3", "/tmp/song.mp3", types.Options{})
	if err := store.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	updates, err := store.Watch(ctx, job.ID)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	job.State = types.StateDone
	job.Stage = types.StageDone
	job.Progress = 100
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("update: %v", err)
	}

	deadline := time.After(5 * time.Second)
	sawTerminal := false
	for !sawTerminal {
		select {
		case snap, ok := <-updates:
			if !ok {
				t.Fatal("stream closed before a terminal snapshot")
			}
			sawTerminal = snap.Terminal()
		case <-deadline:
			t.Fatal("terminal update never reached the watcher")
		}
	}

	select {
	case _, ok := <-updates:
		if ok {
			t.Fatal("stream stayed open past the terminal snapshot")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after the terminal snapshot")
	}
}

// TestRedisWatchTerminalJob: watching an already-terminal job yields one
// snapshot and an immediate close.
func TestRedisWatchTerminalJob(t *testing.T) {
	store := newRedisTestStore(t)
	ctx := context.Background()

	job := NewJob("watch-already-done", "song.mp3", "/tmp/song.mp3", types.Options{})
	job.State = types.StateDone
	job.Progress = 100
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("update: %v", err)
	}

	updates, err := store.Watch(ctx, job.ID)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	snap, ok := <-updates
	if !ok || !snap.Terminal() {
		t.Fatalf("first snapshot = %+v, ok = %v", snap, ok)
	}
	if _, ok := <-updates; ok {
		t.Fatal("stream stayed open for a terminal job")
	}
}

// TestRedisWatchSkipsStaleMessages: a message buffered during watch setup
// that predates the initial snapshot must not be re-emitted, keeping the
// stream monotone.
func TestRedisWatchSkipsStaleMessages(t *testing.T) {
	store := newRedisTestStore(t)
	ctx := context.Background()

	job := NewJob("watch-stale", "song.mp3", "/tmp/song.mp3", types.Options{})
	if err := store.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job.State = types.StateRunning
	job.Progress = 50
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("update: %v", err)
	}

	updates, err := store.Watch(ctx, job.ID)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	job.Progress = 85
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("update: %v", err)
	}
	job.State = types.StateDone
	job.Progress = 100
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("update: %v", err)
	}

	last := -1
	for snap := range updates {
		if snap.Progress < last {
			t.Fatalf("progress regressed: %d -> %d", last, snap.Progress)
		}
		last = snap.Progress
	}
	if last != 100 {
		t.Fatalf("stream ended at progress %d", last)
	}
}
