package stage

import (
	"errors"
	"testing"

	"clipforge/internal/queue"
)

func TestJobBoundsIncludesEveryItem(t *testing.T) {
	works := []*ItemWork{
		{Item: &queue.Item{ID: "a", Position: 0}, Duration: 30},
		nil,
		{Item: &queue.Item{ID: "c", Position: 2}, Duration: 12.5},
	}
	bounds := JobBounds(works)
	if len(bounds) != 2 {
		t.Fatalf("expected 2 bounds, got %d", len(bounds))
	}
	if bounds[1].Index != 2 || bounds[1].ID != "c" || bounds[1].Duration != 12.5 {
		t.Fatalf("unexpected bounds: %#v", bounds[1])
	}
}

func TestDigestBounds(t *testing.T) {
	d := Digest{Items: []ItemDigest{{Index: 1, ItemID: "b", Duration: 40}}}
	bounds := d.Bounds()
	if len(bounds) != 1 || bounds[0].Index != 1 || bounds[0].Duration != 40 {
		t.Fatalf("unexpected bounds: %#v", bounds)
	}
}

func TestEncodePayload(t *testing.T) {
	raw, err := EncodePayload(nil)
	if err != nil || raw != nil {
		t.Fatalf("nil payload: %q, %v", raw, err)
	}
	raw, err = EncodePayload(Analysis{Summary: "goal"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(raw) != `{"summary":"goal"}` {
		t.Fatalf("unexpected payload: %s", raw)
	}
}

func TestHealthConstructors(t *testing.T) {
	if h := Healthy("prepare"); !h.Ready || h.Name != "prepare" {
		t.Fatalf("unexpected healthy record: %#v", h)
	}
	if h := Unhealthy("execute", "ffmpeg missing"); h.Ready || h.Detail != "ffmpeg missing" {
		t.Fatalf("unexpected unhealthy record: %#v", h)
	}
}

func TestUnavailableHealth(t *testing.T) {
	h := Unavailable("transform", "object store not writable", errors.New("read-only file system"))
	if h.Ready || h.Detail != "object store not writable: read-only file system" {
		t.Fatalf("unexpected health: %+v", h)
	}
	if h := Unavailable("finalize", "object store", nil); h.Detail != "object store unavailable" {
		t.Fatalf("unexpected nil-error detail: %q", h.Detail)
	}
	if h := Healthy("prepare"); !h.Ready || h.Detail != "" {
		t.Fatalf("unexpected healthy record: %+v", h)
	}
}
