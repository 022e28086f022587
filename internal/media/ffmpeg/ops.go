package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"clipforge/internal/services"
)

// Compress writes a proxy of input to output using p.
func (r *Runner) Compress(ctx context.Context, input, output string, p Profile) error {
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("compress: create output dir: %w", err)
	}
	return r.run(ctx, "compress", compressArgs(input, output, p))
}

func compressArgs(input, output string, p Profile) []string {
	rate := strconv.Itoa(p.VideoBitrateK) + "k"
	return []string{
		"-i", input,
		"-c:v", "libx264",
		"-preset", p.Preset,
		"-crf", strconv.Itoa(p.CRF),
		"-b:v", rate,
		"-maxrate", rate,
		"-bufsize", strconv.Itoa(p.VideoBitrateK*2) + "k",
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,fps=%d", p.Width, p.Height, p.FPS),
		"-c:a", "aac",
		"-b:a", strconv.Itoa(p.AudioBitrateK) + "k",
		"-ar", strconv.Itoa(p.AudioSampleRate),
		"-movflags", "+faststart",
		output,
	}
}

// Extract renders [start, end) of input to output.
func (r *Runner) Extract(ctx context.Context, input, output string, start, end float64, s OutputSettings) error {
	if end <= start {
		return services.Wrap(services.ErrValidation, "ffmpeg", "extract",
			fmt.Sprintf("end %.3f not after start %.3f", end, start), nil)
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("extract: create output dir: %w", err)
	}
	return r.run(ctx, "extract", extractArgs(input, output, start, end, s))
}

func extractArgs(input, output string, start, end float64, s OutputSettings) []string {
	args := []string{
		"-ss", formatSeconds(start),
		"-i", input,
		"-t", formatSeconds(end - start),
	}
	if s.Copy {
		args = append(args, "-c", "copy")
	} else {
		args = append(args,
			"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%d",
				s.Width, s.Height, s.Width, s.Height, s.FPS),
			"-c:v", "libx264",
			"-preset", s.Preset,
			"-crf", strconv.Itoa(s.CRF),
			"-pix_fmt", "yuv420p",
			"-c:a", "aac",
			"-ar", "44100",
			"-ac", "2",
		)
	}
	return append(args, "-avoid_negative_ts", "make_zero", output)
}

// Concat joins parts in order into output. Parts must share codecs, which
// Extract guarantees for a single OutputSettings value.
func (r *Runner) Concat(ctx context.Context, parts []string, output string) error {
	if len(parts) == 0 {
		return services.Wrap(services.ErrValidation, "ffmpeg", "concat", "no parts", nil)
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("concat: create output dir: %w", err)
	}
	list := output + ".txt"
	if err := os.WriteFile(list, []byte(concatList(parts)), 0o644); err != nil {
		return fmt.Errorf("concat: write list: %w", err)
	}
	defer os.Remove(list)
	return r.run(ctx, "concat", []string{
		"-f", "concat",
		"-safe", "0",
		"-i", list,
		"-c", "copy",
		"-movflags", "+faststart",
		output,
	})
}

func concatList(parts []string) string {
	var b strings.Builder
	for _, part := range parts {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(part, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}
