package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"clipforge/internal/config"
	"clipforge/internal/deps"
	"clipforge/internal/logging"
	"clipforge/internal/media/ffmpeg"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/stage"
	"clipforge/internal/staging"
	"clipforge/internal/storage"
)

const proxyObjectName = "proxy.mp4"

// Compressor encodes analysis proxies.
type Compressor interface {
	Compress(ctx context.Context, input, output string, p ffmpeg.Profile) error
}

// TempStore holds the uploaded proxies.
type TempStore interface {
	TempKey(jobID, itemID, name string) string
	Put(ctx context.Context, key, src string) (storage.Object, error)
	Locate(key string) (string, error)
	CheckWritable() error
}

// TransformPayload is recorded on the transform stage result.
type TransformPayload struct {
	Profile     string  `json:"profile"`
	ProxyBytes  int64   `json:"proxy_bytes"`
	SourceBytes int64   `json:"source_bytes,omitempty"`
	Ratio       float64 `json:"ratio,omitempty"`
	TempKey     string  `json:"temp_key"`
	TempURL     string  `json:"temp_url"`
}

// Transformer is the transform stage handler.
type Transformer struct {
	cfg        *config.Config
	compressor Compressor
	store      TempStore
	logger     *slog.Logger
}

// NewTransformer constructs the transform handler.
func NewTransformer(cfg *config.Config, compressor Compressor, store TempStore, logger *slog.Logger) *Transformer {
	t := &Transformer{cfg: cfg, compressor: compressor, store: store}
	t.SetLogger(logger)
	return t
}

// SetLogger replaces the stage logger.
func (t *Transformer) SetLogger(logger *slog.Logger) {
	t.logger = logging.NewComponentLogger(logger, queue.StageTransform)
}

// Execute compresses the prepared source and uploads the proxy.
func (t *Transformer) Execute(ctx context.Context, work *stage.ItemWork) (any, error) {
	if work == nil || work.Item == nil || work.Job == nil || work.SourcePath == "" {
		return nil, services.Wrap(services.ErrValidation, queue.StageTransform, "validate inputs", "item has no prepared source", nil)
	}
	logger := logging.WithContext(ctx, t.logger)
	profile, err := ffmpeg.ProfileFor(t.cfg.Media.CompressionProfile, work.Duration)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, queue.StageTransform, "select profile", err.Error(), nil)
	}

	proxy := filepath.Join(staging.ItemDir(t.cfg.Paths.StagingDir, work.Job.ID, work.Item.ID), "proxy-"+profile.Name+".mp4")
	if err := t.compressor.Compress(ctx, work.SourcePath, proxy, profile); err != nil {
		return nil, err
	}
	info, err := os.Stat(proxy)
	if err != nil || info.Size() == 0 {
		return nil, services.Wrap(services.ErrExternalTool, queue.StageTransform, "verify proxy", "compression produced no output", err)
	}

	key := t.store.TempKey(work.Job.ID, work.Item.ID, proxyObjectName)
	obj, err := t.store.Put(ctx, key, proxy)
	if err != nil {
		return nil, err
	}
	location, err := t.store.Locate(key)
	if err != nil {
		return nil, err
	}
	work.ProxyPath = proxy
	work.TempKey = obj.Key
	work.TempURL = location

	payload := TransformPayload{
		Profile:    profile.Name,
		ProxyBytes: obj.Size,
		TempKey:    obj.Key,
		TempURL:    location,
	}
	if src, err := os.Stat(work.SourcePath); err == nil && src.Size() > 0 {
		payload.SourceBytes = src.Size()
		payload.Ratio = float64(obj.Size) / float64(src.Size())
	}
	logger.Info("analysis proxy uploaded",
		logging.String(logging.FieldEventType, "proxy_uploaded"),
		logging.String("profile", profile.Name),
		logging.Int64("proxy_bytes", payload.ProxyBytes),
		logging.Float64("ratio", payload.Ratio),
		logging.String("temp_key", obj.Key),
	)
	return payload, nil
}

// HealthCheck reports whether ffmpeg resolves and the store is writable.
func (t *Transformer) HealthCheck(context.Context) stage.Health {
	statuses := deps.CheckBinaries([]deps.Requirement{
		{Name: "ffmpeg", Command: t.cfg.Media.FFmpegBinary},
	})
	if missing, ok := deps.FirstMissing(statuses); ok {
		return stage.Unhealthy(queue.StageTransform, missing.Detail)
	}
	if t.store == nil {
		return stage.Unhealthy(queue.StageTransform, "object store unavailable")
	}
	if err := t.store.CheckWritable(); err != nil {
		return stage.Unavailable(queue.StageTransform, "object store not writable", err)
	}
	return stage.Healthy(queue.StageTransform)
}
