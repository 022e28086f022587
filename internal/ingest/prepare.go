package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"clipforge/internal/config"
	"clipforge/internal/deps"
	"clipforge/internal/logging"
	"clipforge/internal/media/ffprobe"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/sources"
	"clipforge/internal/stage"
	"clipforge/internal/staging"
)

// SourceFetcher resolves an item source into a local file.
type SourceFetcher interface {
	Fetch(ctx context.Context, item *queue.Item, dir string) (sources.Fetched, error)
}

// ProbeFunc inspects a media file.
type ProbeFunc func(ctx context.Context, binary, path string) (ffprobe.Result, error)

// PreparePayload is recorded on the prepare stage result.
type PreparePayload struct {
	SourcePath  string  `json:"source_path"`
	Downloaded  bool    `json:"downloaded"`
	SizeBytes   int64   `json:"size_bytes"`
	Duration    float64 `json:"duration"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	FrameRate   float64 `json:"frame_rate,omitempty"`
	VideoCodec  string  `json:"video_codec"`
	AudioTracks int     `json:"audio_tracks"`
	Container   string  `json:"container,omitempty"`
}

// Preparer is the prepare stage handler.
type Preparer struct {
	cfg     *config.Config
	fetcher SourceFetcher
	probe   ProbeFunc
	logger  *slog.Logger
}

// NewPreparer constructs the prepare handler using ffprobe for inspection.
func NewPreparer(cfg *config.Config, fetcher SourceFetcher, logger *slog.Logger) *Preparer {
	return NewPreparerWithProbe(cfg, fetcher, ffprobe.Inspect, logger)
}

// NewPreparerWithProbe allows injecting the inspector (used in tests).
func NewPreparerWithProbe(cfg *config.Config, fetcher SourceFetcher, probe ProbeFunc, logger *slog.Logger) *Preparer {
	p := &Preparer{cfg: cfg, fetcher: fetcher, probe: probe}
	p.SetLogger(logger)
	return p
}

// SetLogger replaces the stage logger.
func (p *Preparer) SetLogger(logger *slog.Logger) {
	p.logger = logging.NewComponentLogger(logger, queue.StagePrepare)
}

// Execute fetches and inspects the item source.
func (p *Preparer) Execute(ctx context.Context, work *stage.ItemWork) (any, error) {
	if work == nil || work.Item == nil || work.Job == nil {
		return nil, services.Wrap(services.ErrValidation, queue.StagePrepare, "validate inputs", "item work is incomplete", nil)
	}
	logger := logging.WithContext(ctx, p.logger)
	dir := staging.ItemDir(p.cfg.Paths.StagingDir, work.Job.ID, work.Item.ID)

	fetched, err := p.fetcher.Fetch(ctx, work.Item, dir)
	if err != nil {
		return nil, err
	}
	probe, err := p.probe(ctx, p.cfg.Media.FFprobeBinary, fetched.Path)
	if err != nil {
		return nil, err
	}
	if err := probe.Validate(); err != nil {
		return nil, services.Wrap(services.ErrItemFatal, queue.StagePrepare, "validate media",
			fmt.Sprintf("%s is not usable: %v", work.Item.SourceLocation, err), nil)
	}
	video, _ := probe.VideoStream()

	work.SourcePath = fetched.Path
	work.Downloaded = fetched.Downloaded
	work.Duration = probe.DurationSeconds()
	work.Width = video.Width
	work.Height = video.Height

	size := probe.SizeBytes()
	if size <= 0 {
		size = fetched.Size
	}
	payload := PreparePayload{
		SourcePath:  fetched.Path,
		Downloaded:  fetched.Downloaded,
		SizeBytes:   size,
		Duration:    work.Duration,
		Width:       video.Width,
		Height:      video.Height,
		FrameRate:   video.FrameRate(),
		VideoCodec:  video.CodecName,
		AudioTracks: probe.AudioStreamCount(),
		Container:   probe.Format.FormatName,
	}
	logger.Info("item source prepared",
		logging.String(logging.FieldEventType, "source_prepared"),
		logging.String("source_kind", work.Item.SourceKind),
		logging.Float64("duration", payload.Duration),
		logging.String("resolution", fmt.Sprintf("%dx%d", payload.Width, payload.Height)),
		logging.Int64("size_bytes", payload.SizeBytes),
	)
	return payload, nil
}

// HealthCheck reports whether ffprobe can be resolved.
func (p *Preparer) HealthCheck(context.Context) stage.Health {
	statuses := deps.CheckBinaries([]deps.Requirement{
		{Name: "ffprobe", Command: p.cfg.Media.FFprobeBinary},
	})
	if missing, ok := deps.FirstMissing(statuses); ok {
		return stage.Unhealthy(queue.StagePrepare, missing.Detail)
	}
	if p.fetcher == nil {
		return stage.Unhealthy(queue.StagePrepare, "source fetcher unavailable")
	}
	return stage.Healthy(queue.StagePrepare)
}
