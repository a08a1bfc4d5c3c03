package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/quietwire/mercury/internal/jobs"
	"github.com/quietwire/mercury/internal/models"
)

// Storage is the persistence contract the dispatcher needs. All storage
// is accessed inside the receive lock, so implementations do not need
// to serialize the read-check-insert sequences themselves.
type Storage interface {
	// InsertIncoming persists a genuine inbound message, creating the
	// destination thread as needed. Attachment pointers become pending
	// placeholder rows in the same transaction.
	InsertIncoming(ctx context.Context, msg *models.IncomingMessage) (*models.InsertResult, error)

	// InsertOutgoing persists a sync-echo as an outbound record. A
	// threadID <= 0 means the thread is looked up or created from the
	// destination address.
	InsertOutgoing(ctx context.Context, msg *models.OutgoingMessage, threadID int64) (*models.InsertResult, error)

	// FindMessage returns the message stored for (sentTimestamp,
	// conversation address), or nil when none exists.
	FindMessage(ctx context.Context, sentTimestamp int64, address models.Address) (*models.StoredMessage, error)

	DeleteMessage(ctx context.Context, messageID int64) error
	MarkDecryptFailed(ctx context.Context, messageID int64) error

	IncrementDeliveryReceipts(ctx context.Context, address models.Address, timestamps []int64, deliveredAt int64) error
	IncrementReadReceipts(ctx context.Context, address models.Address, timestamps []int64, readAt int64) error

	// SetServerID records the server-assigned identifier of a message so
	// server-side operations can reference it later.
	SetServerID(ctx context.Context, messageID, serverID int64) error

	// SetOriginalThreadID records the thread the message would have
	// belonged to absent sync retargeting.
	SetOriginalThreadID(ctx context.Context, messageID, threadID int64) error

	AttachmentsForMessage(ctx context.Context, messageID int64) ([]*models.Attachment, error)

	GetOrCreateThread(ctx context.Context, address models.Address) (int64, error)
	// ThreadFor returns the existing thread for an address; ok is false
	// when no thread exists yet.
	ThreadFor(ctx context.Context, address models.Address) (threadID int64, ok bool, err error)

	// Recipient returns the resolved identity with local policy flags.
	// Unknown addresses yield a zero-value recipient, never nil.
	Recipient(ctx context.Context, address models.Address) (*models.Recipient, error)
	SetExpireMessages(ctx context.Context, address models.Address, seconds int) error
	SetForceFallback(ctx context.Context, address models.Address, enabled bool) error
	SetProfileKey(ctx context.Context, address models.Address, key []byte) error

	// Group returns the locally known group, or nil when the group is
	// unknown.
	Group(ctx context.Context, encodedID models.Address) (*models.Group, error)
	CreateGroup(ctx context.Context, group *models.Group) error
	UpdateGroup(ctx context.Context, group *models.Group) error

	InsertEnvelope(ctx context.Context, envelope *models.Envelope) (int64, error)
	// Envelope returns the stored envelope, or nil when it was already
	// consumed.
	Envelope(ctx context.Context, id int64) (*models.Envelope, error)
	DeleteEnvelope(ctx context.Context, id int64) error
}

// Account exposes the local account's identity state.
type Account interface {
	// LocalKey is the local account's own serialized public key.
	LocalKey() string
	// HasIdentityKey reports whether local key material is present. When
	// it is not, envelopes are stored for replay instead of consumed.
	HasIdentityKey() bool
	// UpdateProfile applies display name and profile key received from a
	// linked device's configuration message.
	UpdateProfile(displayName string, profileKey []byte) error
}

// Preferences gates optional inbound side effects on user settings.
type Preferences interface {
	ReadReceiptsEnabled() bool
	TypingIndicatorsEnabled() bool
}

// Runner schedules background jobs spawned by the dispatcher.
type Runner interface {
	Submit(ctx context.Context, job jobs.Job) error
}

// Notifier surfaces user-visible events. Implementations must not
// block; the dispatcher calls them while holding the receive lock.
type Notifier interface {
	ThreadUpdated(threadID int64)
	PendingMessages()
}

// Sender delivers outbound side effects spawned by inbound handling.
type Sender interface {
	SendDeliveryReceipt(ctx context.Context, recipient string, timestamp int64) error
	RequestGroupInfo(ctx context.Context, recipient string, groupID []byte) error
}

// StorageFailedError wraps a persistence failure with the original
// sender identity so a decrypt-failed placeholder can be recorded
// against the right conversation. Raw storage errors never cross the
// dispatch boundary.
type StorageFailedError struct {
	Sender       string
	SenderDevice int
	Err          error
}

func (e *StorageFailedError) Error() string {
	return fmt.Sprintf("storage failure handling message from %s (device %d): %v", e.Sender, e.SenderDevice, e.Err)
}

func (e *StorageFailedError) Unwrap() error { return e.Err }

func storageFailed(err error, sender string, device int) error {
	return &StorageFailedError{Sender: sender, SenderDevice: device, Err: err}
}

func asStorageFailed(err error) (*StorageFailedError, bool) {
	var sf *StorageFailedError
	if errors.As(err, &sf) {
		return sf, true
	}
	return nil, false
}
