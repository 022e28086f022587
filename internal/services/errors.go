package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")

	// Pipeline taxonomy markers.
	ErrItemFatal   = errors.New("item fatal")
	ErrDecision    = errors.New("decision unparseable")
	ErrQualityGate = errors.New("quality gate failed")
	ErrExecution   = errors.New("execution failure")
	ErrCancelled   = errors.New("cancelled")
)

// Job terminal reason codes persisted alongside a failed or cancelled job.
const (
	ReasonNoItemsSurvived     = "no_items_survived"
	ReasonDecisionUnparseable = "decision_unparseable"
	ReasonInferenceFailed     = "inference_failed"
	ReasonQualityGateFailed   = "quality_gate_failed"
	ReasonExecutionFailed     = "execution_failed"
	ReasonFinalizeFailed      = "finalize_failed"
	ReasonCancelled           = "cancelled"
	ReasonInterrupted         = "interrupted"
	ReasonInternal            = "internal_error"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorDetails is the persisted summary of a failure.
type ErrorDetails struct {
	Kind    string
	Message string
}

// Details classifies err into a kind label and a human readable message.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	return ErrorDetails{Kind: Kind(err), Message: strings.TrimSpace(err.Error())}
}

// Kind returns the taxonomy label for err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrQualityGate):
		return "quality_gate"
	case errors.Is(err, ErrDecision):
		return "decision_fatal"
	case errors.Is(err, ErrItemFatal):
		return "item_fatal"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExecution):
		return "execution"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "unknown"
	}
}

// IsFatal reports whether err should never be retried.
func IsFatal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return true
	case errors.Is(err, ErrItemFatal), errors.Is(err, ErrDecision), errors.Is(err, ErrQualityGate):
		return true
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return true
	default:
		return false
	}
}

// ReasonCode maps a job-level error onto the terminal reason persisted on the job.
func ReasonCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return ReasonCancelled
	case errors.Is(err, ErrQualityGate):
		return ReasonQualityGateFailed
	case errors.Is(err, ErrDecision):
		return ReasonDecisionUnparseable
	case errors.Is(err, ErrExecution):
		return ReasonExecutionFailed
	default:
		return ReasonInternal
	}
}

// StageReasonCode is ReasonCode refined by the job stage that failed: an
// error without a specific marker is attributed to its stage.
func StageReasonCode(stage string, err error) string {
	reason := ReasonCode(err)
	if err == nil || (reason != ReasonInternal && stage != "finalize") {
		return reason
	}
	switch stage {
	case "plan-generate":
		return ReasonInferenceFailed
	case "execute":
		return ReasonExecutionFailed
	case "finalize":
		if reason == ReasonCancelled {
			return reason
		}
		return ReasonFinalizeFailed
	default:
		return reason
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
