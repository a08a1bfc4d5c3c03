package jobs

import (
	"context"
	"time"
)

// Job is a unit of retryable background work. A job owns its identity
// within the runner (factory key plus serialized parameters), a queue
// key that serializes it against related jobs, and a bounded attempt
// budget.
//
// Lifecycle: OnAdded runs synchronously when the job is submitted,
// before any execution is guaranteed — it is for bookkeeping such as
// marking an attachment started. Run performs the work; on error the
// runner consults ShouldRetry and either schedules another attempt or
// calls OnCanceled exactly once and marks the job failed.
type Job interface {
	// FactoryKey selects the reconstruction function for a persisted
	// record of this job.
	FactoryKey() string

	// QueueKey serializes execution: jobs sharing a queue key never run
	// concurrently and execute in submission order.
	QueueKey() string

	// MaxAttempts is the attempt budget, counting the first run.
	MaxAttempts() int

	// Serialize returns the parameters needed to reconstruct the job.
	Serialize() Data

	// OnAdded runs when the job is submitted, before execution.
	OnAdded(ctx context.Context) error

	// Run executes one attempt.
	Run(ctx context.Context) error

	// ShouldRetry classifies a Run failure as transient (retryable) or
	// terminal.
	ShouldRetry(err error) bool

	// OnCanceled runs exactly once when the job fails terminally or is
	// canceled mid-flight.
	OnCanceled(ctx context.Context)
}

// Record is the durable representation of a submitted job. It is
// created on submission, updated on each attempt, and deleted on
// terminal success or failure.
type Record struct {
	ID          string
	FactoryKey  string
	QueueKey    string
	Data        Data
	Attempts    int
	MaxAttempts int
	CreatedAt   time.Time
}

// Store persists job records. Implemented by the database layer; tests
// use an in-memory fake.
type Store interface {
	PersistJob(ctx context.Context, record *Record) error
	DeleteJob(ctx context.Context, id string) error
	PendingJobs(ctx context.Context) ([]*Record, error)
}
