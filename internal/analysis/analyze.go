package analysis

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"clipforge/internal/config"
	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/services/llm"
	"clipforge/internal/stage"
	"clipforge/internal/temporal"
)

// maxInlineBytes bounds proxies sent as base64 data URLs when the object
// store has no public address.
const maxInlineBytes = 20 << 20

// ObjectOpener reads stored objects.
type ObjectOpener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

type analysisResponse struct {
	Summary    string `json:"summary"`
	KeyMoments []struct {
		Time        string `json:"time"`
		Description string `json:"description"`
	} `json:"key_moments"`
}

// Analyzer is the analyze stage handler.
type Analyzer struct {
	cfg       *config.Config
	provider  llm.Provider
	objects   ObjectOpener
	extractor *temporal.Extractor
	logger    *slog.Logger
}

// NewAnalyzer constructs the analyze handler around a vision provider.
func NewAnalyzer(cfg *config.Config, provider llm.Provider, objects ObjectOpener, logger *slog.Logger) *Analyzer {
	a := &Analyzer{cfg: cfg, provider: provider, objects: objects, extractor: temporal.NewExtractor()}
	a.SetLogger(logger)
	return a
}

// SetLogger replaces the stage logger.
func (a *Analyzer) SetLogger(logger *slog.Logger) {
	a.logger = logging.NewComponentLogger(logger, queue.StageAnalyze)
}

// Execute sends the item proxy to the vision model and records the summary
// and the time references it mentions.
func (a *Analyzer) Execute(ctx context.Context, work *stage.ItemWork) (any, error) {
	if work == nil || work.Item == nil || work.TempKey == "" {
		return nil, services.Wrap(services.ErrValidation, queue.StageAnalyze, "validate inputs", "item has no uploaded proxy", nil)
	}
	logger := logging.WithContext(ctx, a.logger)
	mediaURL, err := a.mediaURL(ctx, work)
	if err != nil {
		return nil, err
	}

	raw, err := a.provider.Complete(ctx, llm.Request{
		System: AnalyzeSystemPrompt,
		User:   analyzeUserPrompt(work),
		Media:  []llm.Media{{Kind: llm.MediaVideo, URL: mediaURL}},
		JSON:   true,
	})
	if err != nil {
		return nil, err
	}

	analysis := a.parse(raw, work.Duration)
	if analysis.Summary == "" {
		return nil, services.Wrap(services.ErrExternalTool, queue.StageAnalyze, "parse analysis", "model returned no description", nil)
	}
	analysis.Model = a.provider.Model()
	work.Analysis = analysis

	logger.Info("item analyzed",
		logging.String(logging.FieldEventType, "item_analyzed"),
		logging.String("model", analysis.Model),
		logging.Int("moments", len(analysis.Moments)),
		logging.Int("summary_runes", len([]rune(analysis.Summary))),
	)
	return analysis, nil
}

func (a *Analyzer) parse(raw string, duration float64) *stage.Analysis {
	var resp analysisResponse
	if err := llm.DecodeJSON(raw, &resp); err != nil || strings.TrimSpace(resp.Summary) == "" {
		text := strings.TrimSpace(raw)
		return &stage.Analysis{
			Summary: text,
			Moments: temporal.Within(a.extractor.Extract(text), duration),
		}
	}
	var b strings.Builder
	b.WriteString(resp.Summary)
	for _, m := range resp.KeyMoments {
		if strings.TrimSpace(m.Time) == "" {
			continue
		}
		fmt.Fprintf(&b, "\nAt %s, %s.", strings.TrimSpace(m.Time), strings.TrimSpace(m.Description))
	}
	return &stage.Analysis{
		Summary: strings.TrimSpace(resp.Summary),
		Moments: temporal.Within(a.extractor.Extract(b.String()), duration),
	}
}

func analyzeUserPrompt(work *stage.ItemWork) string {
	return fmt.Sprintf("Clip %d is %.1f seconds long (%dx%d). Describe it and list its key moments.",
		work.Index(), work.Duration, work.Width, work.Height)
}

// mediaURL returns the proxy address the model can fetch. Non-http locations
// are inlined as a base64 data URL.
func (a *Analyzer) mediaURL(ctx context.Context, work *stage.ItemWork) (string, error) {
	if config.IsHTTPURL(work.TempURL) {
		return work.TempURL, nil
	}
	if a.objects == nil {
		return "", services.Wrap(services.ErrConfiguration, queue.StageAnalyze, "resolve proxy",
			"proxy has no public url; set storage.public_base_url", nil)
	}
	rc, err := a.objects.Open(ctx, work.TempKey)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxInlineBytes+1))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, queue.StageAnalyze, "read proxy", work.TempKey, err)
	}
	if len(data) > maxInlineBytes {
		return "", services.Wrap(services.ErrItemFatal, queue.StageAnalyze, "inline proxy",
			fmt.Sprintf("proxy exceeds %d bytes; set storage.public_base_url", maxInlineBytes), nil)
	}
	return "data:video/mp4;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// HealthCheck reports whether the vision model is configured.
func (a *Analyzer) HealthCheck(context.Context) stage.Health {
	return providerHealth(queue.StageAnalyze, a.cfg, a.provider)
}

func providerHealth(name string, cfg *config.Config, provider llm.Provider) stage.Health {
	if provider == nil {
		return stage.Unhealthy(name, "inference provider not configured")
	}
	if cfg != nil && strings.TrimSpace(cfg.LLM.APIKey) == "" {
		return stage.Unhealthy(name, "llm api_key not set")
	}
	if strings.TrimSpace(provider.Model()) == "" {
		return stage.Unhealthy(name, "model not configured")
	}
	return stage.Healthy(name)
}
