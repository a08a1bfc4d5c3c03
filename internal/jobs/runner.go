package jobs

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/quietwire/mercury/internal/metrics"
)

// Runner executes jobs on a fixed-size worker pool. Jobs sharing a
// queue key run strictly serially in submission order; jobs with
// distinct queue keys run in parallel, bounded by the pool size. A
// retry of a failed job holds its queue until it resolves, so later
// jobs on the same key cannot overtake it.
type Runner struct {
	store    Store
	registry *Registry

	sem    chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	queues map[string]*jobQueue

	// newBackOff builds the per-job retry delay policy.
	newBackOff func() backoff.BackOff
}

type jobQueue struct {
	pending  []*scheduledJob
	draining bool
}

type scheduledJob struct {
	job    Job
	record *Record
}

// NewRunner creates a Runner with the given worker pool size.
func NewRunner(store Store, registry *Registry, workers int) *Runner {
	if workers <= 0 {
		workers = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		store:    store,
		registry: registry,
		sem:      make(chan struct{}, workers),
		ctx:      ctx,
		cancel:   cancel,
		queues:   make(map[string]*jobQueue),
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 500 * time.Millisecond
			bo.MaxInterval = 10 * time.Minute
			bo.MaxElapsedTime = 0
			return bo
		},
	}
}

// Submit persists the job and schedules it for execution. OnAdded runs
// synchronously before Submit returns, so bookkeeping side effects are
// visible before the first attempt starts.
func (r *Runner) Submit(ctx context.Context, job Job) error {
	record := &Record{
		ID:          uuid.NewString(),
		FactoryKey:  job.FactoryKey(),
		QueueKey:    job.QueueKey(),
		Data:        job.Serialize(),
		MaxAttempts: job.MaxAttempts(),
		CreatedAt:   time.Now(),
	}

	if err := r.store.PersistJob(ctx, record); err != nil {
		return err
	}

	if err := job.OnAdded(ctx); err != nil {
		log.Printf("jobs: %s onAdded failed: %v", record.FactoryKey, err)
	}

	r.enqueue(&scheduledJob{job: job, record: record})
	return nil
}

// ResumePending reconstructs persisted jobs through the registry and
// schedules them, oldest first. Records whose kind is no longer
// registered are dropped.
func (r *Runner) ResumePending(ctx context.Context) error {
	records, err := r.store.PendingJobs(ctx)
	if err != nil {
		return err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	for _, record := range records {
		job, err := r.registry.Rebuild(record)
		if err != nil {
			log.Printf("jobs: dropping unresumable job %s: %v", record.ID, err)
			if deleteErr := r.store.DeleteJob(ctx, record.ID); deleteErr != nil {
				log.Printf("jobs: failed to delete unresumable job %s: %v", record.ID, deleteErr)
			}
			continue
		}
		log.Printf("jobs: resuming pending %s job", record.FactoryKey)
		r.enqueue(&scheduledJob{job: job, record: record})
	}

	return nil
}

// Shutdown cancels in-flight work and waits for all queues to stop.
func (r *Runner) Shutdown() {
	r.cancel()
	r.wg.Wait()
}

func (r *Runner) enqueue(sj *scheduledJob) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.queues[sj.record.QueueKey]
	if !ok {
		q = &jobQueue{}
		r.queues[sj.record.QueueKey] = q
	}
	q.pending = append(q.pending, sj)

	if !q.draining {
		q.draining = true
		r.wg.Add(1)
		go r.drain(q)
	}
}

// drain runs one queue serially until it empties.
func (r *Runner) drain(q *jobQueue) {
	defer r.wg.Done()

	for {
		r.mu.Lock()
		if len(q.pending) == 0 {
			q.draining = false
			r.mu.Unlock()
			return
		}
		sj := q.pending[0]
		q.pending = q.pending[1:]
		r.mu.Unlock()

		r.process(sj)
	}
}

// process runs a single job through its attempt budget. The queue stays
// held for the whole retry cycle.
func (r *Runner) process(sj *scheduledJob) {
	bo := r.newBackOff()

	for {
		select {
		case <-r.ctx.Done():
			sj.job.OnCanceled(r.ctx)
			return
		case r.sem <- struct{}{}:
		}

		sj.record.Attempts++
		if err := r.store.PersistJob(r.ctx, sj.record); err != nil {
			log.Printf("jobs: failed to persist %s attempt count: %v", sj.record.FactoryKey, err)
		}

		runErr := sj.job.Run(r.ctx)
		<-r.sem

		if runErr == nil {
			metrics.JobsSucceeded.Inc()
			r.deleteRecord(sj.record)
			return
		}

		if errors.Is(runErr, context.Canceled) || r.ctx.Err() != nil {
			log.Printf("jobs: %s canceled mid-flight", sj.record.FactoryKey)
			sj.job.OnCanceled(r.ctx)
			return
		}

		if sj.job.ShouldRetry(runErr) && sj.record.Attempts < sj.record.MaxAttempts {
			metrics.JobsRetried.Inc()
			wait := bo.NextBackOff()
			log.Printf("jobs: %s failed (attempt %d/%d), retrying in %s: %v",
				sj.record.FactoryKey, sj.record.Attempts, sj.record.MaxAttempts, wait, runErr)
			select {
			case <-r.ctx.Done():
				sj.job.OnCanceled(r.ctx)
				return
			case <-time.After(wait):
			}
			continue
		}

		metrics.JobsFailed.Inc()
		log.Printf("jobs: %s failed permanently after %d attempt(s): %v",
			sj.record.FactoryKey, sj.record.Attempts, runErr)
		sj.job.OnCanceled(r.ctx)
		r.deleteRecord(sj.record)
		return
	}
}

func (r *Runner) deleteRecord(record *Record) {
	if err := r.store.DeleteJob(r.ctx, record.ID); err != nil && r.ctx.Err() == nil {
		log.Printf("jobs: failed to delete job record %s: %v", record.ID, err)
	}
}
