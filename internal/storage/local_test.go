package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/services"
)

func newStore(t *testing.T, publicBase string) *Local {
	t.Helper()
	store, err := NewLocal(config.Storage{RootDir: t.TempDir(), PublicBaseURL: publicBase})
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return store
}

func writeSource(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "src.mp4")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return p
}

func TestPutOpenDelete(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "")
	key := store.TempKey("job-1", "item-0", "proxy.mp4")
	if key != "tmp/job-1/item-0/proxy.mp4" {
		t.Fatalf("unexpected temp key %q", key)
	}

	obj, err := store.Put(ctx, key, writeSource(t, "proxy bytes"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if obj.Key != key || obj.Size != int64(len("proxy bytes")) {
		t.Fatalf("unexpected object %+v", obj)
	}

	rc, err := store.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "proxy bytes" {
		t.Fatalf("unexpected content %q", data)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("second Delete should succeed, got %v", err)
	}
	if _, err := store.Stat(ctx, key); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "tmp", "job-1")); !os.IsNotExist(err) {
		t.Fatalf("expected empty parents pruned, got %v", err)
	}
}

func TestPutMissingSource(t *testing.T) {
	store := newStore(t, "")
	_, err := store.Put(context.Background(), "artifacts/j/output.mp4", filepath.Join(t.TempDir(), "nope.mp4"))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestKeysCannotEscapeRoot(t *testing.T) {
	store := newStore(t, "")
	for _, key := range []string{"", "../etc/passwd", "tmp/../../x", "tmp//a", "."} {
		if _, err := store.Path(key); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("key %q: expected validation error, got %v", key, err)
		}
	}
	if p, err := store.Path("/artifacts/j/out.mp4"); err != nil || !strings.HasPrefix(p, store.Root()) {
		t.Fatalf("expected leading slash accepted, got %q %v", p, err)
	}
}

func TestLocate(t *testing.T) {
	public := newStore(t, "https://cdn.example.com/media/")
	got, err := public.Locate("tmp/job 1/item-0/proxy.mp4")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if got != "https://cdn.example.com/media/tmp/job%201/item-0/proxy.mp4" {
		t.Fatalf("unexpected public url %q", got)
	}

	private := newStore(t, "")
	got, err = private.Locate("artifacts/j/output.mp4")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if !strings.HasPrefix(got, "file://") || !strings.HasSuffix(got, "/artifacts/j/output.mp4") {
		t.Fatalf("unexpected file url %q", got)
	}
}

func TestSweepTempRemovesOnlyExpiredTemporaryObjects(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "")
	old := store.TempKey("job-1", "item-0", "proxy.mp4")
	fresh := store.TempKey("job-2", "item-0", "proxy.mp4")
	artifact := store.ArtifactKey("job-1", "output.mp4")
	for _, key := range []string{old, fresh, artifact} {
		if _, err := store.PutReader(ctx, key, strings.NewReader(key)); err != nil {
			t.Fatalf("PutReader %s: %v", key, err)
		}
	}
	past := time.Now().Add(-48 * time.Hour)
	for _, key := range []string{old, artifact} {
		p, _ := store.Path(key)
		if err := os.Chtimes(p, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed, err := store.SweepTemp(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("SweepTemp: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed %d objects, want 1", removed)
	}
	objects, err := store.List(ctx, "")
	if err == nil {
		t.Fatalf("expected empty prefix to be rejected, got %d objects", len(objects))
	}
	temps, err := store.List(ctx, "tmp")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(temps) != 1 || temps[0].Key != fresh {
		t.Fatalf("unexpected remaining temps %+v", temps)
	}
	if _, err := store.Stat(ctx, artifact); err != nil {
		t.Fatalf("artifact must survive sweep: %v", err)
	}
}

func TestListMissingPrefixIsEmpty(t *testing.T) {
	store := newStore(t, "")
	objects, err := store.List(context.Background(), "tmp")
	if err != nil || len(objects) != 0 {
		t.Fatalf("expected empty listing, got %v %v", objects, err)
	}
	if !store.IsTemp("tmp/a/b") || store.IsTemp("artifacts/a") {
		t.Fatal("unexpected IsTemp result")
	}
	if err := store.CheckWritable(); err != nil {
		t.Fatalf("CheckWritable: %v", err)
	}
}
