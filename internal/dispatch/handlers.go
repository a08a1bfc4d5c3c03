package dispatch

import (
	"context"
	"log"

	"github.com/quietwire/mercury/internal/attachments"
	"github.com/quietwire/mercury/internal/metrics"
	"github.com/quietwire/mercury/internal/models"
)

// handleConfigurationMessage applies multi-device account state synced
// from another of the local user's devices. Only self-originated
// configuration messages are honored.
func (d *Dispatcher) handleConfigurationMessage(ctx context.Context, content *models.Content) error {
	if content.Sender != d.account.LocalKey() {
		log.Printf("dispatch: dropping configuration message from foreign sender %s", content.Sender)
		return nil
	}

	cfg := content.Configuration
	if err := d.account.UpdateProfile(cfg.DisplayName, cfg.ProfileKey); err != nil {
		return storageFailed(err, content.Sender, content.SenderDevice)
	}
	return nil
}

// handleExpirationUpdate records a disappearing-messages timer change
// as a conversation-visible event and applies the new timer to the
// conversation.
func (d *Dispatcher) handleExpirationUpdate(ctx context.Context, content *models.Content, msg *models.DataMessage, placeholderID int64) error {
	conversation := destinationAddress(content, msg)

	if d.isSync(content, msg) {
		target := d.syncDestination(content, msg)
		result, err := d.store.InsertOutgoing(ctx, &models.OutgoingMessage{
			To:               target,
			SentTimestamp:    msg.Timestamp,
			ExpiresInSeconds: msg.ExpiresInSeconds,
			ExpirationUpdate: true,
			Group:            msg.Group,
		}, 0)
		if err != nil {
			return storageFailed(err, content.Sender, content.SenderDevice)
		}
		if err := d.store.SetExpireMessages(ctx, target, msg.ExpiresInSeconds); err != nil {
			return storageFailed(err, content.Sender, content.SenderDevice)
		}
		d.notifier.ThreadUpdated(result.ThreadID)
		return nil
	}

	result, err := d.store.InsertIncoming(ctx, &models.IncomingMessage{
		From:             d.masterAddress(content.Sender),
		SenderDevice:     content.SenderDevice,
		SentTimestamp:    msg.Timestamp,
		Group:            msg.Group,
		ExpiresInSeconds: msg.ExpiresInSeconds,
		ExpirationUpdate: true,
	})
	if err != nil {
		return storageFailed(err, content.Sender, content.SenderDevice)
	}
	if err := d.store.SetExpireMessages(ctx, conversation, msg.ExpiresInSeconds); err != nil {
		return storageFailed(err, content.Sender, content.SenderDevice)
	}

	d.deletePlaceholder(ctx, placeholderID)
	d.notifier.ThreadUpdated(result.ThreadID)
	return nil
}

// handleMediaMessage persists a message carrying attachments, a quote,
// shared contacts or link previews, then schedules a download job per
// pending attachment.
func (d *Dispatcher) handleMediaMessage(ctx context.Context, envelope *models.Envelope, content *models.Content, msg *models.DataMessage, placeholderID int64) error {
	quote, err := d.validatedQuote(ctx, content, msg.Quote)
	if err != nil {
		return storageFailed(err, content.Sender, content.SenderDevice)
	}
	previews := d.validatedPreviews(msg)

	// A quote or shared contact alone renders as nothing; without a body,
	// attachments or previews the message is dropped, never stored.
	if msg.Body == "" && len(msg.Attachments) == 0 && len(previews) == 0 {
		log.Printf("dispatch: media message from %s at %d has no visible content, dropping", content.Sender, msg.Timestamp)
		metrics.EnvelopesIgnored.Inc()
		return nil
	}

	if d.isSync(content, msg) {
		return d.handleSyncMessage(ctx, envelope, content, msg, quote, previews)
	}

	master := d.masterAddress(content.Sender)
	conversation := destinationAddress(content, msg)

	dup, err := d.store.FindMessage(ctx, msg.Timestamp, conversation)
	if err != nil {
		return storageFailed(err, content.Sender, content.SenderDevice)
	}
	if dup != nil {
		log.Printf("dispatch: duplicate media message at %d in %s, skipping", msg.Timestamp, conversation)
		metrics.EnvelopesIgnored.Inc()
		return nil
	}

	result, err := d.store.InsertIncoming(ctx, &models.IncomingMessage{
		From:             master,
		SenderDevice:     content.SenderDevice,
		SentTimestamp:    msg.Timestamp,
		ServerTimestamp:  envelope.Timestamp,
		Body:             msg.Body,
		Group:            msg.Group,
		ExpiresInSeconds: msg.ExpiresInSeconds,
		NeedsReceipt:     content.NeedsReceipt,
		Attachments:      msg.Attachments,
		Quote:            quote,
		Contacts:         msg.Contacts,
		Previews:         previews,
	})
	if err != nil {
		return storageFailed(err, content.Sender, content.SenderDevice)
	}

	d.finishInsert(ctx, envelope, content, result, placeholderID)
	d.scheduleDownloads(ctx, result.MessageID)

	metrics.MessagesInserted.Inc()
	return nil
}

// handleTextMessage persists a plain text message.
func (d *Dispatcher) handleTextMessage(ctx context.Context, envelope *models.Envelope, content *models.Content, msg *models.DataMessage, placeholderID int64) error {
	if d.isSync(content, msg) {
		return d.handleSyncMessage(ctx, envelope, content, msg, nil, nil)
	}

	if err := d.maybeUpdateExpirationTimer(ctx, content, msg); err != nil {
		return err
	}

	master := d.masterAddress(content.Sender)
	conversation := destinationAddress(content, msg)

	dup, err := d.store.FindMessage(ctx, msg.Timestamp, conversation)
	if err != nil {
		return storageFailed(err, content.Sender, content.SenderDevice)
	}
	if dup != nil {
		log.Printf("dispatch: duplicate text message at %d in %s, skipping", msg.Timestamp, conversation)
		metrics.EnvelopesIgnored.Inc()
		return nil
	}

	result, err := d.store.InsertIncoming(ctx, &models.IncomingMessage{
		From:             master,
		SenderDevice:     content.SenderDevice,
		SentTimestamp:    msg.Timestamp,
		ServerTimestamp:  envelope.Timestamp,
		Body:             msg.Body,
		Group:            msg.Group,
		ExpiresInSeconds: msg.ExpiresInSeconds,
		NeedsReceipt:     content.NeedsReceipt,
	})
	if err != nil {
		return storageFailed(err, content.Sender, content.SenderDevice)
	}

	d.finishInsert(ctx, envelope, content, result, placeholderID)

	metrics.MessagesInserted.Inc()
	return nil
}

// handleSyncMessage files a self-originated echo as an outbound record
// under the real destination's thread, so multi-device conversations
// stay consistent.
func (d *Dispatcher) handleSyncMessage(ctx context.Context, envelope *models.Envelope, content *models.Content, msg *models.DataMessage, quote *models.Quote, previews []models.Preview) error {
	target := d.syncDestination(content, msg)

	dup, err := d.store.FindMessage(ctx, msg.Timestamp, target)
	if err != nil {
		return storageFailed(err, content.Sender, content.SenderDevice)
	}
	if dup != nil {
		log.Printf("dispatch: duplicate sync message at %d for %s, skipping", msg.Timestamp, target)
		metrics.EnvelopesIgnored.Inc()
		return nil
	}

	result, err := d.store.InsertOutgoing(ctx, &models.OutgoingMessage{
		To:               target,
		SentTimestamp:    msg.Timestamp,
		ServerTimestamp:  envelope.Timestamp,
		Body:             msg.Body,
		Group:            msg.Group,
		ExpiresInSeconds: msg.ExpiresInSeconds,
		Attachments:      msg.Attachments,
		Quote:            quote,
		Contacts:         msg.Contacts,
		Previews:         previews,
	}, 0)
	if err != nil {
		return storageFailed(err, content.Sender, content.SenderDevice)
	}

	if envelope.ID > 0 {
		if err := d.store.SetServerID(ctx, result.MessageID, envelope.ID); err != nil {
			log.Printf("dispatch: failed to record server id for message %d: %v", result.MessageID, err)
		}
	}

	// The echo is retargeted to the sync destination; remember the
	// sender's own thread so later per-device operations can find it.
	if original, ok, err := d.store.ThreadFor(ctx, d.masterAddress(content.Sender)); err == nil && ok && original != result.ThreadID {
		if err := d.store.SetOriginalThreadID(ctx, result.MessageID, original); err != nil {
			log.Printf("dispatch: failed to record original thread for message %d: %v", result.MessageID, err)
		}
	}

	if msg.ExpiresInSeconds > 0 {
		if err := d.store.SetExpireMessages(ctx, target, msg.ExpiresInSeconds); err != nil {
			return storageFailed(err, content.Sender, content.SenderDevice)
		}
	}

	d.scheduleDownloads(ctx, result.MessageID)
	d.notifier.ThreadUpdated(result.ThreadID)

	metrics.MessagesInserted.Inc()
	return nil
}

// finishInsert runs the bookkeeping shared by every genuine inbound
// insert: server id mapping, mention cache, placeholder reconciliation
// and the thread notification.
func (d *Dispatcher) finishInsert(ctx context.Context, envelope *models.Envelope, content *models.Content, result *models.InsertResult, placeholderID int64) {
	if envelope.ID > 0 {
		if err := d.store.SetServerID(ctx, result.MessageID, envelope.ID); err != nil {
			log.Printf("dispatch: failed to record server id for message %d: %v", result.MessageID, err)
		}
	}

	if err := d.store.SetOriginalThreadID(ctx, result.MessageID, result.ThreadID); err != nil {
		log.Printf("dispatch: failed to record original thread for message %d: %v", result.MessageID, err)
	}

	// A delivered message supersedes any typing indicator from its sender.
	d.typing.Stopped(result.ThreadID, content.Sender, content.SenderDevice)

	d.mentions.Cache(content.Sender, result.ThreadID)
	d.deletePlaceholder(ctx, placeholderID)
	d.notifier.ThreadUpdated(result.ThreadID)
}

// maybeUpdateExpirationTimer reconciles the conversation's timer with
// the one carried by a plain text message: a message sent under a
// different timer implies the sender changed it out of band.
func (d *Dispatcher) maybeUpdateExpirationTimer(ctx context.Context, content *models.Content, msg *models.DataMessage) error {
	conversation := destinationAddress(content, msg)
	recipient, err := d.store.Recipient(ctx, conversation)
	if err != nil {
		return storageFailed(err, content.Sender, content.SenderDevice)
	}
	if recipient.ExpireMessages == msg.ExpiresInSeconds {
		return nil
	}
	return d.handleExpirationUpdate(ctx, content, msg, 0)
}

// scheduleDownloads submits a download job for every pending attachment
// placeholder of the message.
func (d *Dispatcher) scheduleDownloads(ctx context.Context, messageID int64) {
	if d.attachmentEnv == nil {
		return
	}

	pending, err := d.store.AttachmentsForMessage(ctx, messageID)
	if err != nil {
		log.Printf("dispatch: failed to list attachments for message %d: %v", messageID, err)
		return
	}

	for _, attachment := range pending {
		if attachment.TransferState != models.TransferStatePending {
			continue
		}
		d.submitJob(ctx, attachments.NewDownloadJob(d.attachmentEnv, messageID, attachment.ID, false))
	}
}

// deletePlaceholder removes the local echo record an envelope replay was
// correlated with, now that the real message has landed.
func (d *Dispatcher) deletePlaceholder(ctx context.Context, placeholderID int64) {
	if placeholderID <= 0 {
		return
	}
	if err := d.store.DeleteMessage(ctx, placeholderID); err != nil {
		log.Printf("dispatch: failed to delete placeholder %d: %v", placeholderID, err)
	}
}

// isSync reports whether the data message is a self-originated echo
// rather than a genuine inbound message.
func (d *Dispatcher) isSync(content *models.Content, msg *models.DataMessage) bool {
	return msg.SyncTarget != "" || content.Sender == d.account.LocalKey()
}

// syncDestination resolves the thread a sync echo belongs to: the
// embedded sync target when present, the conversation address
// otherwise.
func (d *Dispatcher) syncDestination(content *models.Content, msg *models.DataMessage) models.Address {
	if msg.SyncTarget != "" {
		return models.AddressFromKey(msg.SyncTarget)
	}
	return destinationAddress(content, msg)
}
