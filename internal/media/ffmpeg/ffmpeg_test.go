package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clipforge/internal/services"
	"clipforge/internal/testsupport"
)

// recordingStub writes an ffmpeg stand-in that appends its arguments to a log
// and creates the final argument as the output file.
func recordingStub(t *testing.T) (binary, argLog string) {
	t.Helper()
	dir := t.TempDir()
	argLog = filepath.Join(dir, "args.log")
	body := `printf '%s\n' "$*" >> '` + argLog + `'
eval "out=\${$#}"
: > "$out"
`
	return testsupport.WriteStubBinary(t, dir, "ffmpeg", body), argLog
}

func readArgs(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read arg log: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestProfileForDynamic(t *testing.T) {
	cases := []struct {
		duration float64
		want     string
	}{
		{60, ProfileConservative},
		{179.9, ProfileConservative},
		{180, ProfileBalanced},
		{419, ProfileBalanced},
		{420, ProfileAggressive},
		{600, ProfileAggressive},
	}
	for _, tc := range cases {
		p, err := ProfileFor("dynamic", tc.duration)
		if err != nil {
			t.Fatalf("ProfileFor: %v", err)
		}
		if p.Name != tc.want {
			t.Fatalf("duration %.1f: got %s want %s", tc.duration, p.Name, tc.want)
		}
	}
	if _, err := ProfileFor("lossless", 10); err == nil {
		t.Fatal("expected unknown profile error")
	}
}

func TestSettingsForFallsBackToMedium(t *testing.T) {
	if s := SettingsFor("source"); !s.Copy {
		t.Fatal("source quality should stream copy")
	}
	if s := SettingsFor(""); s.CRF != 23 || s.Height != 720 {
		t.Fatalf("unexpected default settings %+v", s)
	}
	if s := SettingsFor("HIGH"); s.CRF != 18 {
		t.Fatalf("unexpected high settings %+v", s)
	}
}

func TestCompressBuildsProfileArguments(t *testing.T) {
	bin, argLog := recordingStub(t)
	r := NewRunner(bin, time.Minute, nil)
	p, _ := ProfileFor(ProfileAggressive, 0)
	out := filepath.Join(t.TempDir(), "proxy", "a.mp4")

	if err := r.Compress(context.Background(), "/media/a.mov", out, p); err != nil {
		t.Fatalf("Compress: %v", err)
	}
	args := readArgs(t, argLog)[0]
	for _, want := range []string{
		"-i /media/a.mov", "-preset ultrafast", "-crf 28", "-b:v 500k", "-bufsize 1000k",
		"scale=854:480:force_original_aspect_ratio=decrease,fps=10", "-b:a 64k", "-ar 22050",
	} {
		if !strings.Contains(args, want) {
			t.Fatalf("compress args missing %q: %s", want, args)
		}
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("expected output file: %v", err)
	}
}

func TestExtractSeeksAndTrims(t *testing.T) {
	bin, argLog := recordingStub(t)
	r := NewRunner(bin, 0, nil)
	out := filepath.Join(t.TempDir(), "seg-000.mp4")

	if err := r.Extract(context.Background(), "/media/a.mp4", out, 5, 15.5, SettingsFor("medium")); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	args := readArgs(t, argLog)[0]
	if !strings.HasPrefix(args, "-hide_banner -nostdin -loglevel error -y -ss 5.000 -i /media/a.mp4 -t 10.500") {
		t.Fatalf("unexpected extract prefix: %s", args)
	}
	if !strings.Contains(args, "-crf 23") || !strings.Contains(args, "pad=1280:720") {
		t.Fatalf("expected re-encode settings: %s", args)
	}

	if err := r.Extract(context.Background(), "/media/a.mp4", out, 5, 5, SettingsFor("medium")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty range, got %v", err)
	}
}

func TestConcatWritesEscapedList(t *testing.T) {
	dir := t.TempDir()
	listCopy := filepath.Join(dir, "list.copy")
	// $11 is the list path after the five global flags and "-f concat -safe 0 -i".
	body := `cp "${11}" '` + listCopy + `'
eval "out=\${$#}"
: > "$out"
`
	bin := testsupport.WriteStubBinary(t, dir, "ffmpeg", body)
	r := NewRunner(bin, 0, nil)
	out := filepath.Join(dir, "out", "final.mp4")

	if err := r.Concat(context.Background(), []string{"/tmp/a.mp4", "/tmp/it's.mp4"}, out); err != nil {
		t.Fatalf("Concat: %v", err)
	}
	data, err := os.ReadFile(listCopy)
	if err != nil {
		t.Fatalf("read list copy: %v", err)
	}
	want := "file '/tmp/a.mp4'\nfile '/tmp/it'\\''s.mp4'\n"
	if string(data) != want {
		t.Fatalf("unexpected concat list:\n%s", data)
	}
	if _, err := os.Stat(out + ".txt"); !os.IsNotExist(err) {
		t.Fatalf("expected list file removed, got %v", err)
	}

	if err := r.Concat(context.Background(), nil, out); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRunnerClassifiesFailures(t *testing.T) {
	dir := t.TempDir()
	bad := testsupport.WriteStubBinary(t, dir, "bad-input", "echo 'moov atom not found' >&2\nexit 1\n")
	flaky := testsupport.WriteStubBinary(t, dir, "flaky", "echo 'Conversion failed!' >&2\nexit 1\n")
	slow := testsupport.WriteStubBinary(t, dir, "slow", "exec sleep 5\n")

	ctx := context.Background()
	p, _ := ProfileFor(ProfileBalanced, 0)
	out := filepath.Join(dir, "o.mp4")

	if err := NewRunner(bad, 0, nil).Compress(ctx, "in", out, p); !errors.Is(err, services.ErrItemFatal) {
		t.Fatalf("expected item-fatal, got %v", err)
	}
	err := NewRunner(flaky, 0, nil).Compress(ctx, "in", out, p)
	if !errors.Is(err, services.ErrExternalTool) || services.IsFatal(err) {
		t.Fatalf("expected retryable external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Conversion failed!") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
	if err := NewRunner(slow, 50*time.Millisecond, nil).Compress(ctx, "in", out, p); !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if err := NewRunner(filepath.Join(dir, "missing"), 0, nil).Compress(ctx, "in", out, p); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
