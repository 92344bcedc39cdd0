// Package jobs holds the background task definitions and the Asynq worker
// wrapper that runs them.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeNotifyDecision is the task type for notifying a requester
	// about a decision on their request.
	TaskTypeNotifyDecision = "notify:decision"
	// TaskTypeGrantSweep is the task type for the periodic grant expiry
	// sweep.
	TaskTypeGrantSweep = "grants:expire_sweep"
)

// NotifyDecisionPayload describes a decision notification.
type NotifyDecisionPayload struct {
	RequestID int64  `json:"request_id"`
	Requester string `json:"requester"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

// NewNotifyDecisionTask constructs an Asynq task.
func NewNotifyDecisionTask(payload NotifyDecisionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeNotifyDecision, data), nil
}

// NewNotifyDecisionHandler returns the handler for TaskTypeNotifyDecision tasks.
func NewNotifyDecisionHandler(logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		var payload NotifyDecisionPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logger.Error("notify decision: bad payload", "error", err)
			return asynq.SkipRetry
		}
		// Placeholder: integrate with SMTP once the mail relay is available.
		logger.Info("notify requester about decision",
			"requester", payload.Requester,
			"request_id", payload.RequestID,
			"status", payload.Status)
		return nil
	}
}
