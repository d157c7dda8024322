package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// ProcessProjectTask is scheduled when a project's files should be
	// analyzed.
	ProcessProjectTask = "project:process"

	// ActionProcess is the only action the worker recognizes. Anything else
	// is a client error, not a retryable fault.
	ActionProcess = "process"
)

// ErrInvalidPayload marks a malformed job payload: missing identifiers or an
// unsupported action.
var ErrInvalidPayload = errors.New("invalid job payload")

// ProcessPayload is serialized into the task payload so the worker knows
// which project to process.
type ProcessPayload struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Action    string `json:"action"`
	Timestamp int64  `json:"timestamp"`
}

// Validate checks the payload before any storage or database access happens.
func (p ProcessPayload) Validate() error {
	if p.ProjectID == "" {
		return fmt.Errorf("%w: missing project_id", ErrInvalidPayload)
	}
	if p.UserID == "" {
		return fmt.Errorf("%w: missing user_id", ErrInvalidPayload)
	}
	if p.Action != ActionProcess {
		return fmt.Errorf("%w: unsupported action %q", ErrInvalidPayload, p.Action)
	}
	return nil
}

// EnqueueProcess enqueues a processing job for a project.
func EnqueueProcess(ctx context.Context, client *asynq.Client, projectID, userID string) error {
	payload := ProcessPayload{
		ProjectID: projectID,
		UserID:    userID,
		Action:    ActionProcess,
		Timestamp: time.Now().UTC().Unix(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(ProcessProjectTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue process task: %w", err)
	}
	return nil
}
