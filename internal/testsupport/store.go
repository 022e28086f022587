package testsupport

import (
	"context"
	"fmt"
	"testing"

	"clipforge/internal/config"
	"clipforge/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob inserts a queued job with itemCount local items and returns it.
func NewJob(t testing.TB, store *queue.Store, id string, itemCount int) (*queue.Job, []*queue.Item) {
	t.Helper()

	job := &queue.Job{ID: id, TargetDuration: 60}
	items := make([]*queue.Item, 0, itemCount)
	for i := 0; i < itemCount; i++ {
		items = append(items, &queue.Item{
			ID:             fmt.Sprintf("%s-item-%d", id, i),
			SourceKind:     queue.SourceLocal,
			SourceLocation: fmt.Sprintf("/media/clip-%d.mp4", i),
		})
	}
	if err := store.CreateJob(context.Background(), job, items); err != nil {
		t.Fatalf("store.CreateJob: %v", err)
	}
	return job, items
}
