package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/services"
)

func completionServer(t *testing.T, handle func(w http.ResponseWriter, body chatCompletionRequest, raw map[string]any)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != completionsPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var raw map[string]any
		var body chatCompletionRequest
		data, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		_ = json.Unmarshal(data, &raw)
		_ = json.Unmarshal(data, &body)
		handle(w, body, raw)
	}))
	t.Cleanup(server.Close)
	return server
}

func writeContent(w http.ResponseWriter, content any) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []any{map[string]any{"finish_reason": "stop", "message": map[string]any{"content": content}}},
	})
}

func TestClientHealthCheck(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, body chatCompletionRequest, _ map[string]any) {
		if body.ResponseFormat["type"] != "json_object" {
			t.Errorf("health check should request json, got %v", body.ResponseFormat)
		}
		writeContent(w, "```json\n{\"ok\":true}\n```")
	})

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientRejectedCredentialsAreConfigurationErrors(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, _ chatCompletionRequest, _ map[string]any) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	})

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"})
	err := client.HealthCheck(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !services.IsFatal(err) {
		t.Fatal("rejected credentials must not be retried by stage policies")
	}
}

func TestClientMissingKey(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1", Model: "demo"})
	_, err := client.Complete(context.Background(), Request{User: "hi"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestClientSendsVideoParts(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, body chatCompletionRequest, raw map[string]any) {
		if body.Model != "qwen-vl-plus" {
			t.Errorf("unexpected model %q", body.Model)
		}
		messages := raw["messages"].([]any)
		user := messages[len(messages)-1].(map[string]any)
		parts, ok := user["content"].([]any)
		if !ok || len(parts) != 2 {
			t.Errorf("expected two content parts, got %#v", user["content"])
			writeContent(w, "")
			return
		}
		video := parts[0].(map[string]any)
		if video["type"] != "video_url" || video["video_url"].(map[string]any)["url"] != "https://cdn.test/a.mp4" {
			t.Errorf("unexpected video part %#v", video)
		}
		if parts[1].(map[string]any)["text"] != "describe" {
			t.Errorf("unexpected text part %#v", parts[1])
		}
		writeContent(w, []any{map[string]any{"text": "A dog runs."}, map[string]any{"text": "Crowd cheers at 0:42."}})
	})

	client := NewClient(Config{APIKey: "k", BaseURL: server.URL + "/", Model: "qwen-vl-plus"})
	got, err := client.Complete(context.Background(), Request{
		User:  "describe",
		Media: []Media{{Kind: MediaVideo, URL: "https://cdn.test/a.mp4"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "A dog runs.\nCrowd cheers at 0:42." {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestClientAcceptsFullEndpointURL(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, _ chatCompletionRequest, _ map[string]any) {
		writeContent(w, "ok")
	})
	client := NewClient(Config{APIKey: "k", BaseURL: server.URL + completionsPath})
	if _, err := client.Complete(context.Background(), Request{User: "x"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

func TestClientToolCallArguments(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, _ chatCompletionRequest, _ map[string]any) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{
				"message": map[string]any{
					"content":    "",
					"tool_calls": []any{map[string]any{"function": map[string]any{"arguments": `{"segments":[]}`}}},
				},
			}},
		})
	})
	client := NewClient(Config{APIKey: "k", BaseURL: server.URL})
	got, err := client.Complete(context.Background(), Request{User: "plan"})
	if err != nil || got != `{"segments":[]}` {
		t.Fatalf("unexpected result %q, %v", got, err)
	}
}

func TestClientRetriesOnHTTP429(t *testing.T) {
	var calls atomic.Int32
	server := completionServer(t, func(w http.ResponseWriter, _ chatCompletionRequest, _ map[string]any) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeContent(w, "fine")
	})

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(0, 10*time.Second),
		WithRetryMaxAttempts(5),
	)
	got, err := client.Complete(context.Background(), Request{User: "x"})
	if err != nil || got != "fine" {
		t.Fatalf("unexpected result %q, %v", got, err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single sleep of 1s, got %v", slept)
	}
}

func TestClientExhaustedRetriesAreTransient(t *testing.T) {
	var calls atomic.Int32
	server := completionServer(t, func(w http.ResponseWriter, _ chatCompletionRequest, _ map[string]any) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	client := NewClient(Config{APIKey: "k", BaseURL: server.URL},
		WithRetryBackoff(0, 0), WithRetryMaxAttempts(3))

	_, err := client.Complete(context.Background(), Request{User: "x"})
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestClientEmptyContentHasSnippet(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, _ chatCompletionRequest, _ map[string]any) {
		writeContent(w, "")
	})
	client := NewClient(Config{APIKey: "k", BaseURL: server.URL}, WithRetryMaxAttempts(1))

	_, err := client.Complete(context.Background(), Request{User: "x"})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), `finish_reason="stop"`) {
		t.Fatalf("expected finish reason in error, got %v", err)
	}
}

func TestDecodeJSONStripsProse(t *testing.T) {
	var out struct {
		Summary string `json:"summary"`
	}
	if err := DecodeJSON("Sure:\n{\"summary\": \"ok\"} thanks", &out); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if out.Summary != "ok" {
		t.Fatalf("unexpected summary %q", out.Summary)
	}
	if err := DecodeJSON("   ", &out); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestFromConfigSelectsProvider(t *testing.T) {
	cfg := config.Default().LLM
	cfg.APIKey = "k"

	p, err := FromConfig(cfg, cfg.VisionModel)
	if err != nil || p.Name() != ProviderHTTP || p.Model() != "qwen-vl-plus" {
		t.Fatalf("unexpected http provider %v, %v", p, err)
	}

	cfg.Provider = ProviderOpenAI
	p, err = FromConfig(cfg, cfg.PlanModel)
	if err != nil || p.Name() != ProviderOpenAI {
		t.Fatalf("unexpected openai provider %v, %v", p, err)
	}

	cfg.Provider = "carrier-pigeon"
	if _, err := FromConfig(cfg, "x"); err == nil {
		t.Fatal("expected unknown provider error")
	}
}

func TestOpenAIProviderRejectsVideo(t *testing.T) {
	p := NewOpenAIProvider(Config{APIKey: "k", Model: "gpt-4o-mini"})
	_, err := p.Complete(context.Background(), Request{User: "x", Media: []Media{{Kind: MediaVideo, URL: "https://a/b.mp4"}}})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestOpenAIProviderCompletes(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, body chatCompletionRequest, _ map[string]any) {
		if body.Model != "qwen-plus" {
			t.Errorf("unexpected model %q", body.Model)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "qwen-plus",
			"choices": []any{map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "plan text"},
			}},
		})
	})

	p := NewOpenAIProvider(Config{APIKey: "k", BaseURL: server.URL, Model: "qwen-plus"})
	got, err := p.Complete(context.Background(), Request{System: "s", User: "u"})
	if err != nil || got != "plan text" {
		t.Fatalf("unexpected result %q, %v", got, err)
	}
}
