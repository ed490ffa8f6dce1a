package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/recallhq/recall/pkg/natsutil"
)

// FailedJob is a job whose retries were exhausted, preserved for inspection
// and manual replay.
type FailedJob struct {
	Job      Job       `json:"job"`
	Error    string    `json:"error"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failedAt"`
}

// defaultFailedCapacity bounds the in-memory failed-job log. Oldest entries
// are evicted first.
const defaultFailedCapacity = 1000

// FailedLog subscribes to the DLQ subject and keeps a bounded in-memory
// record of exhausted jobs. Failed work is never silently dropped: it
// lands here and stays visible until evicted by newer failures.
type FailedLog struct {
	mu   sync.Mutex
	jobs []FailedJob
	cap  int
}

// NewFailedLog creates a log holding up to defaultFailedCapacity entries.
func NewFailedLog() *FailedLog {
	return &FailedLog{cap: defaultFailedCapacity}
}

// Start subscribes the log to the DLQ subject.
func (l *FailedLog) Start(nc *nats.Conn) (*nats.Subscription, error) {
	return natsutil.Subscribe(nc, DLQSubject, func(_ context.Context, f FailedJob) {
		l.Record(f)
	})
}

// Record appends a failed job, evicting the oldest entry when full.
func (l *FailedLog) Record(f FailedJob) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.jobs) >= l.cap {
		l.jobs = l.jobs[1:]
	}
	l.jobs = append(l.jobs, f)
}

// List returns a copy of the failed jobs, newest first.
func (l *FailedLog) List() []FailedJob {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]FailedJob, len(l.jobs))
	for i, f := range l.jobs {
		out[len(l.jobs)-1-i] = f
	}
	return out
}

// Len reports the number of retained failed jobs.
func (l *FailedLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.jobs)
}
