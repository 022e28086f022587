package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"clipforge/internal/services"
)

const openAIMaxRetries = 2

// OpenAIProvider sends requests through the official openai-go SDK. It
// accepts image references but not video; use the HTTP client for vision
// models that take video input.
type OpenAIProvider struct {
	client  openai.Client
	cfg     Config
	timeout time.Duration
}

// NewOpenAIProvider constructs the SDK-backed provider. An empty BaseURL
// targets api.openai.com.
func NewOpenAIProvider(cfg Config, extra ...option.RequestOption) *OpenAIProvider {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithMaxRetries(openAIMaxRetries),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(strings.TrimRight(base, "/"), completionsPath)+"/"))
	}
	if cfg.Referer != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.Referer))
	}
	if cfg.Title != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.Title))
	}
	opts = append(opts, extra...)
	return &OpenAIProvider{client: openai.NewClient(opts...), cfg: cfg, timeout: timeout}
}

// Name identifies the provider.
func (p *OpenAIProvider) Name() string { return ProviderOpenAI }

// Model returns the configured model.
func (p *OpenAIProvider) Model() string { return p.cfg.Model }

// Complete issues one chat completion.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	if err := req.validate(); err != nil {
		return "", services.Wrap(services.ErrValidation, "llm", "complete", err.Error(), nil)
	}
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return "", services.Wrap(services.ErrConfiguration, "llm", "complete", "api key required", nil)
	}
	params, err := p.buildParams(req)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classifyOpenAI(err)
	}
	for _, choice := range completion.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
	}
	finish := ""
	if len(completion.Choices) > 0 {
		finish = completion.Choices[0].FinishReason
	}
	return "", services.Wrap(services.ErrExternalTool, "llm", "complete", "",
		&emptyContentError{FinishReason: finish, Snippet: "<sdk response>"})
}

func (p *OpenAIProvider) buildParams(req Request) (openai.ChatCompletionNewParams, error) {
	model := p.cfg.Model
	if req.Model != "" {
		model = req.Model
	}
	temperature := p.cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Temperature: openai.Float(temperature),
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		}
	}
	if system := strings.TrimSpace(req.System); system != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(system))
	}
	user := strings.TrimSpace(req.User)
	if len(req.Media) == 0 {
		params.Messages = append(params.Messages, openai.UserMessage(user))
		return params, nil
	}
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(req.Media)+1)
	for _, m := range req.Media {
		if m.Kind == MediaVideo {
			return params, services.Wrap(services.ErrConfiguration, "llm", "complete",
				"openai provider does not accept video input", nil)
		}
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: m.URL}))
	}
	parts = append(parts, openai.TextContentPart(user))
	params.Messages = append(params.Messages, openai.UserMessage(parts))
	return params, nil
}

// HealthCheck lists the configured model.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return services.Wrap(services.ErrConfiguration, "llm", "health", "api key required", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if _, err := p.client.Models.Get(ctx, p.cfg.Model); err != nil {
		return fmt.Errorf("llm health: %w", classifyOpenAI(err))
	}
	return nil
}

func classifyOpenAI(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "llm", "complete", "", err)
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case retryableStatus(apiErr.StatusCode):
			return services.Wrap(services.ErrTransient, "llm", "complete", "", err)
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, "llm", "complete", "credentials rejected", err)
		default:
			return services.Wrap(services.ErrExternalTool, "llm", "complete", "", err)
		}
	}
	return services.Wrap(services.ErrTransient, "llm", "complete", "", err)
}
