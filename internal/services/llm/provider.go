package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"clipforge/internal/config"
)

// Provider names accepted in llm.provider.
const (
	ProviderHTTP   = "http"
	ProviderOpenAI = "openai"
)

// MediaKind selects how a media reference is presented to the model.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Media is a URL the model should look at.
type Media struct {
	Kind MediaKind
	URL  string
}

// Request is one chat completion. Model and Temperature override the
// provider defaults when set.
type Request struct {
	Model       string
	System      string
	User        string
	Media       []Media
	JSON        bool
	Temperature *float64
}

func (r Request) validate() error {
	if strings.TrimSpace(r.User) == "" {
		return errors.New("user prompt required")
	}
	for _, m := range r.Media {
		if strings.TrimSpace(m.URL) == "" {
			return errors.New("media url required")
		}
	}
	return nil
}

// Provider is an inference backend.
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req Request) (string, error)
	HealthCheck(ctx context.Context) error
}

// FromConfig builds the configured provider for model.
func FromConfig(cfg config.LLM, model string, opts ...Option) (Provider, error) {
	base := Config{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		Model:          model,
		Referer:        cfg.Referer,
		Title:          cfg.Title,
		TimeoutSeconds: cfg.TimeoutSeconds,
		Temperature:    cfg.Temperature,
	}
	switch cfg.Provider {
	case "", ProviderHTTP:
		return NewClient(base, opts...), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(base), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
