package deps

import (
	"context"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

var versionPattern = regexp.MustCompile(`(?i)^(ffmpeg|ffprobe) version (\S+)`)

const versionTimeout = 10 * time.Second

// ProbeVersion runs "<binary> -version" and fills s.Version from the banner.
// A binary that resolves but fails to run is marked unavailable.
func ProbeVersion(ctx context.Context, s Status) Status {
	if !s.Available {
		return s
	}
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, s.Command, "-version").Output()
	if err != nil {
		s.Available = false
		s.Detail = "version check failed: " + err.Error()
		return s
	}
	s.Version = parseVersion(string(out))
	return s
}

func parseVersion(output string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(output), "\n")
	if m := versionPattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
		return m[2]
	}
	return ""
}
