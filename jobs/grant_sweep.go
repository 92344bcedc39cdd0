package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/jitaccess/jitaccess/internal/grants"
)

// GrantSweepPayload carries the identity of one sweep run.
type GrantSweepPayload struct {
	RunID string `json:"run_id"`
}

// NewGrantSweepTask constructs a sweep task with a fresh run id.
func NewGrantSweepTask() (*asynq.Task, error) {
	data, err := json.Marshal(GrantSweepPayload{RunID: uuid.NewString()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeGrantSweep, data), nil
}

// GrantSweepJob expires overdue grants on a schedule.
type GrantSweepJob struct {
	Service *grants.Service
	Logger  *slog.Logger
	clock   func() time.Time
}

// NewGrantSweepJob initialises the sweep handler.
func NewGrantSweepJob(service *grants.Service, logger *slog.Logger) *GrantSweepJob {
	return &GrantSweepJob{
		Service: service,
		Logger:  logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one sweep run.
func (j *GrantSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("grant sweep: handler not configured")
	}
	var payload GrantSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.clock()
	expired, err := j.Service.ExpireSweep(ctx)
	if err != nil {
		j.Logger.Error("grant sweep failed",
			slog.String("run_id", payload.RunID),
			slog.Any("error", err))
		return err
	}
	j.Logger.Info("grant sweep finished",
		slog.String("run_id", payload.RunID),
		slog.Int("expired", expired),
		slog.Duration("took", j.clock().Sub(start)))
	return nil
}
