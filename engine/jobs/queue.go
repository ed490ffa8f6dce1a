// Package jobs implements the embedding job queue and the worker pool that
// drains it. Jobs carry a field snapshot, so a record mutated after
// enqueueing does not change a job already in flight; delivery is
// at-least-once and the worker's upsert is idempotent, so duplicates are
// harmless.
package jobs

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/recallhq/recall/engine/content"
	"github.com/recallhq/recall/pkg/natsutil"
)

const (
	// JobsSubject carries embedding job snapshots to the worker pool.
	JobsSubject = "recall.embed.jobs"
	// DLQSubject receives jobs whose retries are exhausted. Nothing is
	// dropped silently; the failed-job log subscribes here.
	DLQSubject = "recall.embed.dlq"
)

// Job is one embedding work item: a content ID plus the snapshot of the
// fields that build its combined text.
type Job struct {
	ContentID int64               `json:"contentId"`
	Fields    content.EmbedFields `json:"fields"`
}

// Queue publishes embedding jobs. It satisfies content.Enqueuer.
type Queue struct {
	nc *nats.Conn
}

// NewQueue creates a queue bound to a NATS connection.
func NewQueue(nc *nats.Conn) *Queue {
	return &Queue{nc: nc}
}

// Enqueue publishes a job snapshot. It never blocks on embedding work: the
// publish returns as soon as the message is handed to the server.
func (q *Queue) Enqueue(ctx context.Context, id int64, fields content.EmbedFields) error {
	if err := natsutil.Publish(ctx, q.nc, JobsSubject, Job{ContentID: id, Fields: fields}); err != nil {
		return fmt.Errorf("jobs: enqueue %d: %w", id, err)
	}
	return nil
}
