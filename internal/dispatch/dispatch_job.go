package dispatch

import (
	"context"
	"log"

	"github.com/quietwire/mercury/internal/jobs"
)

// DispatchJobKey is the factory key for stored-envelope dispatch jobs.
const DispatchJobKey = "EnvelopeDispatch"

const (
	dispatchMaxAttempts = 10

	keyEnvelopeID    = "envelope_id"
	keyPlaceholderID = "placeholder_id"
)

// DispatchJob replays one durably stored envelope through the
// dispatcher. All dispatch jobs share a single queue key: envelope
// handling is globally serialized anyway, so parallel workers would
// only contend on the receive lock.
type DispatchJob struct {
	dispatcher *Dispatcher

	EnvelopeID    int64
	PlaceholderID int64
}

// NewDispatchJob creates a dispatch job for a stored envelope.
// placeholderID, when positive, identifies a local echo record to
// reconcile against.
func NewDispatchJob(dispatcher *Dispatcher, envelopeID, placeholderID int64) *DispatchJob {
	return &DispatchJob{dispatcher: dispatcher, EnvelopeID: envelopeID, PlaceholderID: placeholderID}
}

// DispatchJobFromData reconstructs a dispatch job from its persisted
// record.
func DispatchJobFromData(dispatcher *Dispatcher, data jobs.Data) (jobs.Job, error) {
	return NewDispatchJob(dispatcher, data.Long(keyEnvelopeID), data.Long(keyPlaceholderID)), nil
}

func (j *DispatchJob) FactoryKey() string { return DispatchJobKey }

func (j *DispatchJob) QueueKey() string { return DispatchJobKey }

func (j *DispatchJob) MaxAttempts() int { return dispatchMaxAttempts }

func (j *DispatchJob) Serialize() jobs.Data {
	return jobs.Data{
		keyEnvelopeID:    j.EnvelopeID,
		keyPlaceholderID: j.PlaceholderID,
	}
}

func (j *DispatchJob) OnAdded(ctx context.Context) error { return nil }

func (j *DispatchJob) Run(ctx context.Context) error {
	return j.dispatcher.ProcessStored(ctx, j.EnvelopeID, j.PlaceholderID)
}

// ShouldRetry is always false: dispatch failures are handled inside the
// dispatcher (placeholders, logs), never by re-running the envelope.
func (j *DispatchJob) ShouldRetry(err error) bool { return false }

func (j *DispatchJob) OnCanceled(ctx context.Context) {
	log.Printf("dispatch: giving up on stored envelope %d", j.EnvelopeID)
}
