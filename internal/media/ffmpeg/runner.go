package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"clipforge/internal/logging"
	"clipforge/internal/services"
)

// reBadInput matches stderr that means the input itself is unusable.
var reBadInput = regexp.MustCompile(
	`(?i)Invalid data found when processing input|moov atom not found|` +
		`does not contain any stream|No such file or directory|` +
		`Invalid argument|could not find codec parameters`)

const stderrLimit = 600

// Runner executes ffmpeg with a per-command deadline.
type Runner struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewRunner builds a runner. A non-positive timeout disables the deadline.
func NewRunner(binary string, timeout time.Duration, logger *slog.Logger) *Runner {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{binary: binary, timeout: timeout, logger: logger}
}

// Binary returns the executable the runner invokes.
func (r *Runner) Binary() string { return r.binary }

func (r *Runner) run(ctx context.Context, op string, args []string) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	full := append([]string{"-hide_banner", "-nostdin", "-loglevel", "error", "-y"}, args...)
	cmd := exec.CommandContext(ctx, r.binary, full...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	logging.WithContext(ctx, r.logger).Debug("ffmpeg finished",
		logging.String("op", op),
		logging.Duration("elapsed", time.Since(started)),
		logging.Bool("ok", err == nil),
	)
	if err == nil {
		return nil
	}
	return classify(ctx, r.binary, op, stderr.String(), err)
}

func classify(ctx context.Context, binary, op, stderr string, err error) error {
	msg := tail(stderr)
	var execErr *exec.Error
	switch {
	case errors.As(err, &execErr), errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return services.Wrap(services.ErrConfiguration, "ffmpeg", op, binary+" not runnable", err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "ffmpeg", op, "command deadline exceeded", err)
	case ctx.Err() != nil:
		return ctx.Err()
	case reBadInput.MatchString(stderr):
		return services.Wrap(services.ErrItemFatal, "ffmpeg", op, msg, err)
	default:
		return services.Wrap(services.ErrExternalTool, "ffmpeg", op, msg, err)
	}
}

func tail(stderr string) string {
	s := strings.TrimSpace(stderr)
	if len(s) > stderrLimit {
		s = "..." + s[len(s)-stderrLimit:]
	}
	return s
}

func formatSeconds(v float64) string {
	return fmt.Sprintf("%.3f", v)
}
