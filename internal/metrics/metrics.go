package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	EnvelopesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mercury_envelopes_processed_total",
		Help: "Total envelopes handled by the dispatcher.",
	})
	EnvelopesIgnored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mercury_envelopes_ignored_total",
		Help: "Total envelopes dropped by the ignore rules (duplicates, blocked, inactive groups).",
	})
	DecryptFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mercury_decrypt_failures_total",
		Help: "Total protocol-level decryption failures.",
	})
	MessagesInserted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mercury_messages_inserted_total",
		Help: "Total messages persisted (inbound and sync-echo outbound).",
	})
	AttachmentsDownloaded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mercury_attachments_downloaded_total",
		Help: "Total attachment downloads completed.",
	})
	AttachmentsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mercury_attachments_failed_total",
		Help: "Total attachment downloads marked failed.",
	})
	JobsSucceeded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mercury_jobs_succeeded_total",
		Help: "Total jobs completed successfully.",
	})
	JobsRetried = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mercury_jobs_retried_total",
		Help: "Total job attempts rescheduled after a transient failure.",
	})
	JobsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mercury_jobs_failed_total",
		Help: "Total jobs that exhausted retries or failed terminally.",
	})
)

// Register installs all pipeline counters into the default registry.
func Register() {
	prometheus.MustRegister(
		EnvelopesProcessed, EnvelopesIgnored, DecryptFailures,
		MessagesInserted,
		AttachmentsDownloaded, AttachmentsFailed,
		JobsSucceeded, JobsRetried, JobsFailed,
	)
}
