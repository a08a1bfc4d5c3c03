package dispatch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/quietwire/mercury/internal/attachments"
	"github.com/quietwire/mercury/internal/cipher"
	"github.com/quietwire/mercury/internal/jobs"
	"github.com/quietwire/mercury/internal/metrics"
	"github.com/quietwire/mercury/internal/models"
)

// defaultIgnoreWindow is how long a handled timestamp stays in the
// duplicate-suppression window.
const defaultIgnoreWindow = time.Hour

// Dispatcher decrypts envelopes, classifies the resulting content and
// fans out to kind-specific handlers. All envelope handling runs under
// a single process-wide receive lock: the duplicate checks are
// read-check-insert sequences that are only correct when no two
// envelopes are in flight at once, regardless of sender.
type Dispatcher struct {
	store    Storage
	cipher   cipher.Cipher
	runner   Runner
	notifier Notifier
	prefs    Preferences
	account  Account
	sender   Sender

	attachmentEnv *attachments.Env

	typing   *TypingRepository
	mentions *MentionCache

	receiveMu sync.Mutex
	recent    *recentWindow
}

// Deps bundles the dispatcher's collaborators.
type Deps struct {
	Store         Storage
	Cipher        cipher.Cipher
	Runner        Runner
	Notifier      Notifier
	Prefs         Preferences
	Account       Account
	Sender        Sender
	AttachmentEnv *attachments.Env
	Typing        *TypingRepository
}

// New creates a Dispatcher.
func New(deps Deps) *Dispatcher {
	typing := deps.Typing
	if typing == nil {
		typing = NewTypingRepository(nil)
	}
	return &Dispatcher{
		store:         deps.Store,
		cipher:        deps.Cipher,
		runner:        deps.Runner,
		notifier:      deps.Notifier,
		prefs:         deps.Prefs,
		account:       deps.Account,
		sender:        deps.Sender,
		attachmentEnv: deps.AttachmentEnv,
		typing:        typing,
		mentions:      NewMentionCache(),
		recent:        newRecentWindow(defaultIgnoreWindow),
	}
}

// Mentions exposes the per-thread sender key cache.
func (d *Dispatcher) Mentions() *MentionCache { return d.mentions }

// Typing exposes the typing indicator repository.
func (d *Dispatcher) Typing() *TypingRepository { return d.typing }

// ProcessEnvelope handles a freshly delivered envelope. When local key
// material is missing (migration pending) the envelope is stored for
// later replay instead of consumed. isPushNotification marks envelopes
// that arrived through a push notification; their protocol-level
// decrypt failures are suppressed to avoid double-inserting failure
// placeholders during session churn.
func (d *Dispatcher) ProcessEnvelope(ctx context.Context, envelope *models.Envelope, isPushNotification bool) error {
	d.receiveMu.Lock()
	defer d.receiveMu.Unlock()

	if !d.account.HasIdentityKey() {
		log.Printf("dispatch: no identity key yet, storing envelope for replay")
		if _, err := d.store.InsertEnvelope(ctx, envelope); err != nil {
			return fmt.Errorf("failed to store envelope for replay: %w", err)
		}
		d.notifier.PendingMessages()
		return nil
	}

	d.handleMessage(ctx, envelope, 0, isPushNotification)
	return nil
}

// ProcessStored replays a durably stored envelope and deletes it from
// the inbox on completion. placeholderID, when positive, identifies a
// local echo record to reconcile against.
func (d *Dispatcher) ProcessStored(ctx context.Context, envelopeID, placeholderID int64) error {
	d.receiveMu.Lock()
	defer d.receiveMu.Unlock()

	if !d.account.HasIdentityKey() {
		log.Printf("dispatch: no identity key yet, leaving envelope %d stored", envelopeID)
		d.notifier.PendingMessages()
		return nil
	}

	envelope, err := d.store.Envelope(ctx, envelopeID)
	if err != nil {
		return fmt.Errorf("failed to load envelope %d: %w", envelopeID, err)
	}
	if envelope == nil {
		log.Printf("dispatch: envelope %d already consumed", envelopeID)
		return nil
	}

	d.handleMessage(ctx, envelope, placeholderID, false)
	return d.store.DeleteEnvelope(ctx, envelopeID)
}

// handleMessage runs the decrypt-classify-persist sequence for one
// envelope. It never propagates handler failures: protocol and storage
// failures become durable decrypt-failed placeholders, metadata
// failures are logged and dropped.
func (d *Dispatcher) handleMessage(ctx context.Context, envelope *models.Envelope, placeholderID int64, isPushNotification bool) {
	metrics.EnvelopesProcessed.Inc()

	content, err := d.cipher.Decrypt(envelope)
	if err != nil {
		d.handleDecryptFailure(ctx, envelope, placeholderID, isPushNotification, err)
		return
	}

	ignore, err := d.shouldIgnore(ctx, content)
	if err != nil {
		log.Printf("dispatch: ignore check failed: %v", err)
		return
	}
	if ignore {
		log.Printf("dispatch: ignoring message from %s at %d", content.Sender, content.Timestamp)
		metrics.EnvelopesIgnored.Inc()
		return
	}

	if err := d.classify(ctx, envelope, content, placeholderID); err != nil {
		if sf, ok := asStorageFailed(err); ok {
			d.handleCorruptMessage(ctx, sf.Sender, sf.SenderDevice, envelope.Timestamp, placeholderID)
			return
		}
		log.Printf("dispatch: failed to handle message from %s: %v", content.Sender, err)
		return
	}

	d.resetRecipientToPush(ctx, models.AddressFromKey(content.Sender))
}

// classify routes decrypted content to exactly one kind-specific
// handler, in fixed priority order.
func (d *Dispatcher) classify(ctx context.Context, envelope *models.Envelope, content *models.Content, placeholderID int64) error {
	switch {
	case content.Configuration != nil:
		return d.handleConfigurationMessage(ctx, content)

	case content.DataMessage != nil:
		return d.handleDataMessage(ctx, envelope, content, placeholderID)

	case content.Receipt != nil:
		return d.handleReceiptMessage(ctx, content)

	case content.Typing != nil:
		return d.handleTypingMessage(ctx, content)

	default:
		log.Printf("dispatch: got unrecognized message from %s", content.Sender)
		return nil
	}
}

func (d *Dispatcher) handleDataMessage(ctx context.Context, envelope *models.Envelope, content *models.Content, placeholderID int64) error {
	msg := content.DataMessage

	if msg.GroupControl != nil {
		if err := d.handleGroupControl(ctx, msg.GroupControl, msg.Timestamp, envelope.Source, content.Sender); err != nil {
			return err
		}
	}

	switch {
	case msg.ExpirationUpdate:
		if err := d.handleExpirationUpdate(ctx, content, msg, placeholderID); err != nil {
			return err
		}
	case msg.IsMediaMessage():
		if err := d.handleMediaMessage(ctx, envelope, content, msg, placeholderID); err != nil {
			return err
		}
	case msg.Body != "":
		if err := d.handleTextMessage(ctx, envelope, content, msg, placeholderID); err != nil {
			return err
		}
	}

	if msg.Group != nil {
		unknown, err := d.isUnknownGroup(ctx, models.GroupAddress(msg.Group.ID))
		if err != nil {
			return err
		}
		if unknown {
			d.handleUnknownGroupMessage(ctx, content, msg.Group)
		}
	}

	if len(msg.ProfileKey) == 32 {
		if err := d.store.SetProfileKey(ctx, models.AddressFromKey(content.Sender), msg.ProfileKey); err != nil {
			log.Printf("dispatch: failed to update profile key for %s: %v", content.Sender, err)
		}
	}

	if d.shouldSendDeliveryReceipt(content, msg) {
		d.submitJob(ctx, NewSendDeliveryReceiptJob(d.sender, content.Sender, msg.Timestamp))
	}

	return nil
}

// handleDecryptFailure maps decryption error kinds to their durable
// side effects.
func (d *Dispatcher) handleDecryptFailure(ctx context.Context, envelope *models.Envelope, placeholderID int64, isPushNotification bool, err error) {
	if pe, ok := cipher.IsProtocolError(err); ok {
		log.Printf("dispatch: %v", pe)
		metrics.DecryptFailures.Inc()
		// A push notification encrypted with an old session can arrive
		// after a session reset; recording it would duplicate the
		// placeholder the live delivery already produced.
		if !isPushNotification {
			d.handleCorruptMessage(ctx, pe.Sender, pe.SenderDevice, envelope.Timestamp, placeholderID)
		}
		return
	}

	if cipher.IsMetadataError(err) {
		log.Printf("dispatch: %v", err)
		return
	}

	log.Printf("dispatch: failed to decrypt envelope from %s: %v", envelope.Source, err)
}

// handleCorruptMessage records a durable decrypt-failed marker against
// the sender's conversation so the failure stays visible to the user.
func (d *Dispatcher) handleCorruptMessage(ctx context.Context, sender string, senderDevice int, timestamp int64, placeholderID int64) {
	if placeholderID > 0 {
		if err := d.store.MarkDecryptFailed(ctx, placeholderID); err != nil {
			log.Printf("dispatch: failed to mark placeholder %d decrypt-failed: %v", placeholderID, err)
		}
		return
	}

	result, err := d.insertPlaceholder(ctx, sender, senderDevice, timestamp)
	if err != nil {
		log.Printf("dispatch: failed to insert decrypt-failed placeholder for %s: %v", sender, err)
		return
	}

	if err := d.store.MarkDecryptFailed(ctx, result.MessageID); err != nil {
		log.Printf("dispatch: failed to mark message %d decrypt-failed: %v", result.MessageID, err)
	}
	d.notifier.ThreadUpdated(result.ThreadID)
}

func (d *Dispatcher) insertPlaceholder(ctx context.Context, sender string, senderDevice int, timestamp int64) (*models.InsertResult, error) {
	master := d.masterAddress(sender)
	return d.store.InsertIncoming(ctx, &models.IncomingMessage{
		From:          master,
		SenderDevice:  senderDevice,
		SentTimestamp: timestamp,
	})
}

// shouldIgnore applies the drop rules that precede classification. A
// dropped message produces no persistence at all.
func (d *Dispatcher) shouldIgnore(ctx context.Context, content *models.Content) (bool, error) {
	if content == nil {
		log.Printf("dispatch: got a message with null content")
		return true, nil
	}

	if d.recent.seen(content.Timestamp) {
		log.Printf("dispatch: duplicate message at %d within ignore window", content.Timestamp)
		return true, nil
	}

	if content.Sender == d.account.LocalKey() {
		existing, err := d.store.FindMessage(ctx, content.Timestamp, models.AddressFromKey(content.Sender))
		if err != nil {
			return false, err
		}
		if existing != nil {
			log.Printf("dispatch: skipping message from self we already have")
			return true, nil
		}
	}

	sender, err := d.store.Recipient(ctx, models.AddressFromKey(content.Sender))
	if err != nil {
		return false, err
	}

	if content.DataMessage == nil {
		return false, nil
	}

	msg := content.DataMessage
	conversation := destinationAddress(content, msg)

	if !conversation.IsGroup() {
		return sender.Blocked, nil
	}

	groupRecipient, err := d.store.Recipient(ctx, conversation)
	if err != nil {
		return false, err
	}
	if groupRecipient.Blocked {
		return true, nil
	}

	group, err := d.store.Group(ctx, conversation)
	if err != nil {
		return false, err
	}
	if group == nil {
		// Unknown group: let the message through so discovery can run.
		return false, nil
	}

	isTextMessage := msg.Body != ""
	isMediaMessage := len(msg.Attachments) > 0 || msg.Quote != nil || len(msg.Contacts) > 0
	isExpireMessage := msg.ExpirationUpdate
	isContentMessage := !msg.IsGroupUpdate() && (isTextMessage || isMediaMessage || isExpireMessage)
	isLeaveMessage := msg.IsGroupQuit()

	return (isContentMessage && !group.Active) || (sender.Blocked && !isLeaveMessage), nil
}

// shouldSendDeliveryReceipt excludes self-originated, sync-echo and
// group messages from delivery receipts.
func (d *Dispatcher) shouldSendDeliveryReceipt(content *models.Content, msg *models.DataMessage) bool {
	if !content.NeedsReceipt {
		return false
	}
	if content.Sender == d.account.LocalKey() {
		return false
	}
	if msg.SyncTarget != "" {
		return false
	}
	if msg.Group != nil {
		return false
	}
	return true
}

// resetRecipientToPush clears the force-fallback-transport flag after a
// message arrives through the normal channel.
func (d *Dispatcher) resetRecipientToPush(ctx context.Context, address models.Address) {
	recipient, err := d.store.Recipient(ctx, address)
	if err != nil {
		log.Printf("dispatch: failed to load recipient %s: %v", address, err)
		return
	}
	if recipient.ForceFallback {
		if err := d.store.SetForceFallback(ctx, address, false); err != nil {
			log.Printf("dispatch: failed to reset force-fallback for %s: %v", address, err)
		}
	}
}

func (d *Dispatcher) submitJob(ctx context.Context, job jobs.Job) {
	if err := d.runner.Submit(ctx, job); err != nil {
		log.Printf("dispatch: failed to submit %s job: %v", job.FactoryKey(), err)
	}
}

// recentWindow is the duplicate-suppression window keyed by content
// timestamp. seen records the timestamp and reports whether it was
// already present within the window.
type recentWindow struct {
	mu     sync.Mutex
	window time.Duration
	seen_  map[int64]time.Time
}

func newRecentWindow(window time.Duration) *recentWindow {
	return &recentWindow{window: window, seen_: make(map[int64]time.Time)}
}

func (w *recentWindow) seen(timestamp int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	for ts, at := range w.seen_ {
		if now.Sub(at) > w.window {
			delete(w.seen_, ts)
		}
	}

	if _, ok := w.seen_[timestamp]; ok {
		return true
	}
	w.seen_[timestamp] = now
	return false
}

// MentionCache maps threads to the sender keys seen in them, for
// mention resolution in the composer.
type MentionCache struct {
	mu      sync.RWMutex
	byThead map[int64]map[string]struct{}
}

// NewMentionCache creates an empty cache.
func NewMentionCache() *MentionCache {
	return &MentionCache{byThead: make(map[int64]map[string]struct{})}
}

// Cache records that senderKey has posted in threadID.
func (c *MentionCache) Cache(senderKey string, threadID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys, ok := c.byThead[threadID]
	if !ok {
		keys = make(map[string]struct{})
		c.byThead[threadID] = keys
	}
	keys[senderKey] = struct{}{}
}

// KeysForThread returns the sender keys cached for a thread.
func (c *MentionCache) KeysForThread(threadID int64) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.byThead[threadID]))
	for key := range c.byThead[threadID] {
		keys = append(keys, key)
	}
	return keys
}
