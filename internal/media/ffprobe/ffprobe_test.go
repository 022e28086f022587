package ffprobe

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"clipforge/internal/services"
	"clipforge/internal/testsupport"
)

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "audio"},
			{CodecType: "video", Width: 1920, Height: 1080, AvgFrameRate: "30000/1001"},
			{CodecType: "audio"},
		},
		Format: Format{Duration: "123.45", Size: "1000"},
	}
	video, ok := result.VideoStream()
	if !ok || video.Width != 1920 || video.Height != 1080 {
		t.Fatalf("unexpected video stream %+v", video)
	}
	if math.Abs(video.FrameRate()-29.97) > 0.01 {
		t.Fatalf("unexpected frame rate %v", video.FrameRate())
	}
	if result.AudioStreamCount() != 2 {
		t.Fatalf("expected 2 audio streams, got %d", result.AudioStreamCount())
	}
	if result.DurationSeconds() != 123.45 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 1000 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
	if err := result.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDurationFallsBackToStreams(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "video", Duration: "12.5"}, {CodecType: "audio", Duration: "13"}},
		Format:  Format{Duration: "N/A"},
	}
	if result.DurationSeconds() != 13 {
		t.Fatalf("expected stream duration fallback, got %v", result.DurationSeconds())
	}
}

func TestValidateRejectsAudioOnlyAndBadDuration(t *testing.T) {
	if err := (Result{Streams: []Stream{{CodecType: "audio"}}, Format: Format{Duration: "5"}}).Validate(); err == nil {
		t.Fatal("expected error for audio-only input")
	}
	if err := (Result{Streams: []Stream{{CodecType: "video"}}, Format: Format{Duration: "bad"}}).Validate(); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestInspectParsesStubOutput(t *testing.T) {
	bin := testsupport.WriteStubBinary(t, t.TempDir(), "ffprobe",
		`echo '{"streams":[{"index":0,"codec_type":"video","width":640,"height":360}],"format":{"duration":"42.0"}}'`+"\n")

	result, err := Inspect(context.Background(), bin, "/media/a.mp4")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if result.DurationSeconds() != 42 {
		t.Fatalf("unexpected duration %v", result.DurationSeconds())
	}
}

func TestInspectFailureIsItemFatal(t *testing.T) {
	bin := testsupport.WriteStubBinary(t, t.TempDir(), "ffprobe", "echo 'Invalid data found when processing input' >&2\nexit 1\n")

	_, err := Inspect(context.Background(), bin, "/media/a.mp4")
	if !errors.Is(err, services.ErrItemFatal) {
		t.Fatalf("expected item-fatal error, got %v", err)
	}
}

func TestInspectMissingBinary(t *testing.T) {
	_, err := Inspect(context.Background(), filepath.Join(t.TempDir(), "nope"), "/media/a.mp4")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
