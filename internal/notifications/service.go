package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/quality"
)

const userAgent = "clipforge/0.1.0"

// Event identifies what happened.
type Event string

const (
	EventJobCompleted Event = "job_completed"
	EventJobFailed    Event = "job_failed"
	EventTest         Event = "test"
)

// Payload carries event data. Job events store a Completion under KeyCompletion.
type Payload map[string]any

// KeyCompletion is the Payload key holding a Completion.
const KeyCompletion = "completion"

// Completion is the body pushed to completion callbacks.
type Completion struct {
	JobID            string         `json:"job_id"`
	Status           string         `json:"status"`
	ArtifactLocation string         `json:"artifact_location,omitempty"`
	QualityScore     *quality.Score `json:"quality_score,omitempty"`
	FailedItems      []string       `json:"failed_items"`
	Error            string         `json:"error,omitempty"`
	Reason           string         `json:"reason,omitempty"`
	// CallbackURL overrides the configured webhook for this job.
	CallbackURL string `json:"-"`
}

// CompletionPayload wraps c for Publish.
func CompletionPayload(c Completion) Payload {
	return Payload{KeyCompletion: c}
}

func completionFrom(p Payload) (Completion, bool) {
	if p == nil {
		return Completion{}, false
	}
	c, ok := p[KeyCompletion].(Completion)
	return c, ok
}

// Service publishes events to every configured transport.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds the notifier for cfg.
func NewService(cfg *config.Config) Service {
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	d := &dispatcher{
		completed: cfg.Notifications.JobCompleted,
		failed:    cfg.Notifications.JobFailed,
		webhook: &webhookNotifier{
			defaultURL: strings.TrimSpace(cfg.Notifications.WebhookURL),
			secret:     cfg.Notifications.WebhookSecret,
			client:     client,
		},
	}
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		d.ntfy = &ntfyNotifier{endpoint: topic, client: client}
	}
	return d
}

type dispatcher struct {
	ntfy      *ntfyNotifier
	webhook   *webhookNotifier
	completed bool
	failed    bool
}

func (d *dispatcher) Publish(ctx context.Context, event Event, payload Payload) error {
	switch event {
	case EventJobCompleted:
		if !d.completed {
			return nil
		}
	case EventJobFailed:
		if !d.failed {
			return nil
		}
	case EventTest:
		if d.ntfy == nil {
			return nil
		}
		return d.ntfy.send(ctx, ntfyMessage{
			title:    "clipforge - Test",
			message:  "Notification system test",
			tags:     []string{"clipforge", "test"},
			priority: "low",
		})
	default:
		return fmt.Errorf("unknown notification event %q", event)
	}

	completion, ok := completionFrom(payload)
	if !ok {
		return errors.New("job event requires a completion payload")
	}
	var errs []error
	if d.ntfy != nil {
		if err := d.ntfy.send(ctx, formatCompletion(event, completion)); err != nil {
			errs = append(errs, err)
		}
	}
	if d.webhook != nil {
		if err := d.webhook.send(ctx, completion); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type ntfyMessage struct {
	title    string
	message  string
	tags     []string
	priority string
}

func formatCompletion(event Event, c Completion) ntfyMessage {
	short := c.JobID
	if len(short) > 8 {
		short = short[:8]
	}
	if event == EventJobCompleted {
		var b strings.Builder
		fmt.Fprintf(&b, "Job %s complete", short)
		if c.ArtifactLocation != "" {
			fmt.Fprintf(&b, "\nArtifact: %s", c.ArtifactLocation)
		}
		if c.QualityScore != nil {
			fmt.Fprintf(&b, "\nQuality: %.2f", c.QualityScore.Total)
		}
		if n := len(c.FailedItems); n > 0 {
			fmt.Fprintf(&b, "\nSkipped items: %d", n)
		}
		return ntfyMessage{
			title:    "clipforge - Complete",
			message:  b.String(),
			tags:     []string{"clipforge", "job", "completed"},
			priority: "high",
		}
	}
	message := fmt.Sprintf("Job %s failed", short)
	if c.Reason != "" {
		message += " (" + c.Reason + ")"
	}
	if c.Error != "" {
		message += ": " + c.Error
	}
	return ntfyMessage{
		title:    "clipforge - Failed",
		message:  message,
		tags:     []string{"clipforge", "job", "failed"},
		priority: "high",
	}
}

type ntfyNotifier struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyNotifier) send(ctx context.Context, data ntfyMessage) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
