package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/issuedesk/internal/filestore"
	jobmetrics "github.com/odyssey-erp/issuedesk/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPurgeAttachments removes stored attachment files no issue references anymore.
	TaskPurgeAttachments = "attachments:purge"
)

// PurgeAttachmentsPayload lists the file references to remove.
type PurgeAttachmentsPayload struct {
	Refs []string `json:"refs"`
}

// NewPurgeAttachmentsTask constructs an Asynq task.
func NewPurgeAttachmentsTask(refs ...string) (*asynq.Task, error) {
	data, err := json.Marshal(PurgeAttachmentsPayload{Refs: refs})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPurgeAttachments, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// PurgeJob deletes attachment files from the file store.
type PurgeJob struct {
	store   filestore.Store
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewPurgeJob builds the purge handler. metrics may be nil.
func NewPurgeJob(store filestore.Store, logger *slog.Logger, metrics *jobmetrics.Metrics) *PurgeJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &PurgeJob{store: store, logger: logger, metrics: metrics}
}

// Handle processes TaskPurgeAttachments tasks.
func (j *PurgeJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload PurgeAttachmentsPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode purge payload: %w", asynq.SkipRetry)
	}
	tracker := j.metrics.Track(TaskPurgeAttachments)
	return tracker.End(j.Purge(ctx, payload.Refs...))
}

// Purge removes every ref, continuing past failures. Refs that are already gone are not
// errors but are not counted as purged either, so retries do not inflate the metric.
func (j *PurgeJob) Purge(ctx context.Context, refs ...string) error {
	var errs []error
	removed, absent := 0, 0
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		err := j.store.Remove(ctx, ref)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, filestore.ErrNotExist):
			absent++
		default:
			errs = append(errs, fmt.Errorf("remove %s: %w", ref, err))
		}
	}
	j.metrics.AddPurged(removed)
	j.logger.Info("attachments purged",
		slog.Int("removed", removed),
		slog.Int("absent", absent),
		slog.Int("failed", len(errs)))
	return errors.Join(errs...)
}
