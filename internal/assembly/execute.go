package assembly

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"clipforge/internal/config"
	"clipforge/internal/decision"
	"clipforge/internal/deps"
	"clipforge/internal/logging"
	"clipforge/internal/media/ffmpeg"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/stage"
	"clipforge/internal/staging"
)

// OutputName is the file name of the assembled artifact.
const OutputName = "output.mp4"

// Renderer cuts and joins media.
type Renderer interface {
	Extract(ctx context.Context, input, output string, start, end float64, s ffmpeg.OutputSettings) error
	Concat(ctx context.Context, parts []string, output string) error
}

// Executor is the execute stage handler.
type Executor struct {
	cfg      *config.Config
	renderer Renderer
	logger   *slog.Logger
}

// NewExecutor constructs the execute handler.
func NewExecutor(cfg *config.Config, renderer Renderer, logger *slog.Logger) *Executor {
	e := &Executor{cfg: cfg, renderer: renderer}
	e.SetLogger(logger)
	return e
}

// SetLogger replaces the stage logger.
func (e *Executor) SetLogger(logger *slog.Logger) {
	e.logger = logging.NewComponentLogger(logger, queue.StageExecute)
}

// Execute renders every segment of doc in order and joins them into one
// artifact in the job's output directory. Segment ends are clamped to the
// probed item duration.
func (e *Executor) Execute(ctx context.Context, job *queue.Job, doc decision.Document, works []*stage.ItemWork) (stage.Artifact, error) {
	if job == nil {
		return stage.Artifact{}, services.Wrap(services.ErrValidation, queue.StageExecute, "validate inputs", "job is nil", nil)
	}
	if len(doc.Segments) == 0 {
		return stage.Artifact{}, services.Wrap(services.ErrValidation, queue.StageExecute, "validate inputs", "decision has no segments", nil)
	}
	logger := logging.WithContext(ctx, e.logger)
	byIndex := make(map[int]*stage.ItemWork, len(works))
	for _, w := range works {
		if w != nil && w.Item != nil {
			byIndex[w.Index()] = w
		}
	}

	outDir := staging.OutputDir(e.cfg.Paths.StagingDir, job.ID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return stage.Artifact{}, services.Wrap(services.ErrTransient, queue.StageExecute, "create output dir", outDir, err)
	}
	settings := ffmpeg.SettingsFor(job.Options.OutputQuality)

	parts := make([]string, 0, len(doc.Segments))
	defer func() {
		for _, p := range parts {
			_ = os.Remove(p)
		}
	}()
	var rendered float64
	for i, seg := range doc.Segments {
		work, ok := byIndex[seg.Item]
		if !ok || work.SourcePath == "" {
			return stage.Artifact{}, services.Wrap(services.ErrValidation, queue.StageExecute, "resolve segment",
				fmt.Sprintf("segment %d references item %d without a prepared source", i, seg.Item), nil)
		}
		end := seg.End
		if work.Duration > 0 {
			end = math.Min(end, work.Duration)
		}
		if end <= seg.Start {
			logging.WarnWithContext(logger, "segment outside source skipped", "segment_skipped",
				logging.Int("segment", i),
				logging.Int("item", seg.Item),
				logging.Float64("start", seg.Start),
				logging.String(logging.FieldImpact, "artifact is shorter than planned"),
			)
			continue
		}
		part := filepath.Join(outDir, fmt.Sprintf("segment-%03d.mp4", i))
		if err := e.renderer.Extract(ctx, work.SourcePath, part, seg.Start, end, settings); err != nil {
			return stage.Artifact{}, err
		}
		parts = append(parts, part)
		rendered += end - seg.Start
	}
	if len(parts) == 0 {
		return stage.Artifact{}, services.Wrap(services.ErrValidation, queue.StageExecute, "render segments", "no segment overlaps its source", nil)
	}

	output := filepath.Join(outDir, OutputName)
	if err := e.renderer.Concat(ctx, parts, output); err != nil {
		return stage.Artifact{}, err
	}
	info, err := os.Stat(output)
	if err != nil || info.Size() == 0 {
		return stage.Artifact{}, services.Wrap(services.ErrExternalTool, queue.StageExecute, "verify artifact", "concatenation produced no output", err)
	}

	artifact := stage.Artifact{Path: output, Duration: rendered, Size: info.Size(), Segments: len(parts)}
	logger.Info("artifact rendered",
		logging.String(logging.FieldEventType, "artifact_rendered"),
		logging.Int("segments", artifact.Segments),
		logging.Float64("duration", artifact.Duration),
		logging.Int64("size_bytes", artifact.Size),
		logging.String("output_quality", job.Options.OutputQuality),
	)
	return artifact, nil
}

// HealthCheck reports whether ffmpeg resolves.
func (e *Executor) HealthCheck(context.Context) stage.Health {
	statuses := deps.CheckBinaries([]deps.Requirement{{Name: "ffmpeg", Command: e.cfg.Media.FFmpegBinary}})
	if missing, ok := deps.FirstMissing(statuses); ok {
		return stage.Unhealthy(queue.StageExecute, missing.Detail)
	}
	return stage.Healthy(queue.StageExecute)
}
