package attachments

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/quietwire/mercury/internal/jobs"
	"github.com/quietwire/mercury/internal/metrics"
	"github.com/quietwire/mercury/internal/models"
	"github.com/quietwire/mercury/internal/transport"
)

// JobKey is the factory key for attachment download jobs.
const JobKey = "AttachmentDownload"

const (
	maxAttachmentSize = 10 * 1024 * 1024
	maxAttempts       = 5

	keyMessageID    = "message_id"
	keyPartRowID    = "part_row_id"
	keyPartUniqueID = "part_unique_id"
	keyManual       = "part_manual"
)

// InvalidPartError reports attachment parameters that can never produce
// a successful download: a missing remote location, or a missing
// decryption key when an integrity digest is expected. It is never
// retried.
type InvalidPartError struct {
	Reason string
}

func (e *InvalidPartError) Error() string {
	return fmt.Sprintf("invalid attachment part: %s", e.Reason)
}

// Store is the attachment persistence contract the download job needs.
type Store interface {
	// Attachment returns the attachment, or nil when it no longer exists.
	Attachment(ctx context.Context, id models.AttachmentID) (*models.Attachment, error)
	SetTransferState(ctx context.Context, messageID int64, id models.AttachmentID, state models.TransferState) error
	// FinalizeDownload fills the attachment placeholder from the
	// plaintext stream and marks the transfer done.
	FinalizeDownload(ctx context.Context, messageID int64, id models.AttachmentID, content io.Reader) error
}

// Downloader fetches remote bytes into a local file.
type Downloader interface {
	DownloadFile(ctx context.Context, dest *os.File, url string, maxBytes int64, progress transport.ProgressFunc) error
}

// Policy decides whether an attachment may be fetched without an
// explicit user request (metered connection, user preference).
type Policy interface {
	AutoDownloadPermitted(attachment *models.Attachment) bool
}

// ProgressFunc receives transfer progress for one attachment.
type ProgressFunc func(id models.AttachmentID, total, soFar int64)

// Env bundles the collaborators shared by all download jobs.
type Env struct {
	Store      Store
	Downloader Downloader
	Policy     Policy
	// TempDir receives scratch files during transfers; empty means the
	// system default.
	TempDir string
	// Progress, when non-nil, is invoked fire-and-forget with transfer
	// progress. It never blocks the transfer.
	Progress ProgressFunc
}

// DownloadJob drives one attachment through the transfer state machine:
// pending → started → done, or failed. The queue key is derived from
// the attachment id, so retries of the same logical attachment
// serialize while distinct attachments download in parallel.
type DownloadJob struct {
	env *Env

	MessageID    int64
	AttachmentID models.AttachmentID
	Manual       bool
}

// NewDownloadJob creates a download job for the given attachment.
// Manual marks a user-requested download, which bypasses the
// auto-download policy.
func NewDownloadJob(env *Env, messageID int64, attachmentID models.AttachmentID, manual bool) *DownloadJob {
	return &DownloadJob{env: env, MessageID: messageID, AttachmentID: attachmentID, Manual: manual}
}

// JobFromData reconstructs a download job from its persisted record.
func JobFromData(env *Env, data jobs.Data) (jobs.Job, error) {
	id := models.AttachmentID{RowID: data.Long(keyPartRowID), UniqueID: data.Long(keyPartUniqueID)}
	return NewDownloadJob(env, data.Long(keyMessageID), id, data.Bool(keyManual)), nil
}

func (j *DownloadJob) FactoryKey() string { return JobKey }

func (j *DownloadJob) QueueKey() string {
	return fmt.Sprintf("%s-%d-%d", JobKey, j.AttachmentID.RowID, j.AttachmentID.UniqueID)
}

func (j *DownloadJob) MaxAttempts() int { return maxAttempts }

func (j *DownloadJob) Serialize() jobs.Data {
	return jobs.Data{
		keyMessageID:    j.MessageID,
		keyPartRowID:    j.AttachmentID.RowID,
		keyPartUniqueID: j.AttachmentID.UniqueID,
		keyManual:       j.Manual,
	}
}

// OnAdded marks the attachment started as soon as the job is submitted,
// so the conversation shows a spinner before the first attempt runs.
func (j *DownloadJob) OnAdded(ctx context.Context) error {
	attachment, err := j.env.Store.Attachment(ctx, j.AttachmentID)
	if err != nil {
		return err
	}

	pending := attachment != nil && attachment.TransferState != models.TransferStateDone
	if pending && (j.Manual || j.env.Policy.AutoDownloadPermitted(attachment)) {
		return j.env.Store.SetTransferState(ctx, j.MessageID, j.AttachmentID, models.TransferStateStarted)
	}
	return nil
}

func (j *DownloadJob) Run(ctx context.Context) error {
	attachment, err := j.env.Store.Attachment(ctx, j.AttachmentID)
	if err != nil {
		return fmt.Errorf("failed to load attachment %s: %w", j.AttachmentID, err)
	}

	if attachment == nil {
		log.Printf("attachments: %s no longer exists, skipping download", j.AttachmentID)
		return nil
	}

	if !attachment.InProgress() {
		log.Printf("attachments: %s already resolved (%s), skipping download", j.AttachmentID, attachment.TransferState)
		return nil
	}

	if !j.Manual && !j.env.Policy.AutoDownloadPermitted(attachment) {
		// Deferred, not failed: the attachment goes back to pending and
		// stays eligible for a later manual or policy-triggered retry.
		log.Printf("attachments: auto-download not permitted for %s, deferring", j.AttachmentID)
		return j.env.Store.SetTransferState(ctx, j.MessageID, j.AttachmentID, models.TransferStatePending)
	}

	if err := j.env.Store.SetTransferState(ctx, j.MessageID, j.AttachmentID, models.TransferStateStarted); err != nil {
		return fmt.Errorf("failed to mark attachment started: %w", err)
	}

	if err := j.retrieve(ctx, attachment); err != nil {
		return err
	}

	metrics.AttachmentsDownloaded.Inc()
	return nil
}

// ShouldRetry retries only transient network failures. Invalid
// parameters, non-success responses, verification failures and storage
// errors are terminal for this attempt cycle.
func (j *DownloadJob) ShouldRetry(err error) bool {
	return transport.IsNetworkError(err)
}

// OnCanceled marks the attachment failed. Storage errors on this path
// are logged and swallowed; there is nothing better to do with them.
func (j *DownloadJob) OnCanceled(ctx context.Context) {
	if err := j.env.Store.SetTransferState(ctx, j.MessageID, j.AttachmentID, models.TransferStateFailed); err != nil {
		log.Printf("attachments: failed to mark %s failed: %v", j.AttachmentID, err)
	}
	metrics.AttachmentsFailed.Inc()
}

// retrieve streams the remote bytes to a scoped temp file, verifies and
// decrypts them when a digest is present, then hands the plaintext to
// storage. The temp file is deleted on every exit path.
func (j *DownloadJob) retrieve(ctx context.Context, attachment *models.Attachment) error {
	if err := validatePart(attachment); err != nil {
		return err
	}

	file, err := os.CreateTemp(j.env.TempDir, "attachment-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		_ = file.Close()
		_ = os.Remove(file.Name())
	}()

	progress := func(total, soFar int64) {
		if j.env.Progress != nil {
			go j.env.Progress(j.AttachmentID, total, soFar)
		}
	}

	if err := j.env.Downloader.DownloadFile(ctx, file, attachment.Location, maxAttachmentSize, progress); err != nil {
		return err
	}

	var content io.Reader
	if len(attachment.Digest) == 0 {
		// No digest means an open/unauthenticated source: expose the raw
		// bytes without decryption.
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("failed to rewind temp file: %w", err)
		}
		content = file
	} else {
		ciphertext, err := os.ReadFile(file.Name())
		if err != nil {
			return fmt.Errorf("failed to read temp file: %w", err)
		}
		plaintext, err := VerifyAndDecrypt(ciphertext, attachment.Key, attachment.Digest)
		if err != nil {
			return err
		}
		content = bytes.NewReader(plaintext)
	}

	if err := j.env.Store.FinalizeDownload(ctx, j.MessageID, j.AttachmentID, content); err != nil {
		return fmt.Errorf("failed to store attachment content: %w", err)
	}

	return nil
}

// validatePart rejects descriptors that can never download. An
// attachment with neither key nor digest comes from an open group
// server and is fetched without decryption; an empty key with a digest
// present is malformed.
func validatePart(attachment *models.Attachment) error {
	if attachment.Location == "" {
		return &InvalidPartError{Reason: "empty remote location"}
	}

	openSource := attachment.Key == "" && len(attachment.Digest) == 0
	if attachment.Key == "" && !openSource {
		return &InvalidPartError{Reason: "empty decryption key"}
	}

	return nil
}
