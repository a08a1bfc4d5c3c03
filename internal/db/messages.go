package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/quietwire/mercury/internal/models"
)

// ErrMessageNotFound is returned when a requested message cannot be found.
var ErrMessageNotFound = errors.New("message not found")

// InsertIncoming persists an inbound message, creating the destination
// thread as needed. Attachment pointers become pending placeholder rows
// in the same transaction, so a crash cannot leave a media message
// without its placeholders.
func (s *Store) InsertIncoming(ctx context.Context, msg *models.IncomingMessage) (*models.InsertResult, error) {
	address := msg.From
	if msg.Group != nil {
		address = models.GroupAddress(msg.Group.ID)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var threadID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO threads (address)
		VALUES ($1)
		ON CONFLICT (address) DO UPDATE SET
			address = EXCLUDED.address
		RETURNING id
	`, address.String()).Scan(&threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create thread: %w", err)
	}

	contacts, previews, err := encodeExtras(msg.Contacts, msg.Previews)
	if err != nil {
		return nil, err
	}

	var quoteID *int64
	var quoteAuthor, quoteText *string
	if msg.Quote != nil {
		quoteID = &msg.Quote.ID
		quoteAuthor = &msg.Quote.Author
		quoteText = &msg.Quote.Text
	}

	var messageID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (
			thread_id,
			address,
			sender_device,
			sent_at,
			server_at,
			body,
			outgoing,
			is_media,
			expires_in,
			expiration_update,
			needs_receipt,
			quote_id,
			quote_author,
			quote_text,
			contacts,
			previews
		) VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`,
		threadID,
		address.String(),
		msg.SenderDevice,
		msg.SentTimestamp,
		msg.ServerTimestamp,
		msg.Body,
		msg.IsMedia(),
		msg.ExpiresInSeconds,
		msg.ExpirationUpdate,
		msg.NeedsReceipt,
		quoteID,
		quoteAuthor,
		quoteText,
		contacts,
		previews,
	).Scan(&messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	if err := insertPlaceholders(ctx, tx, messageID, msg.SentTimestamp, msg.Attachments); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit message insert: %w", err)
	}

	return &models.InsertResult{MessageID: messageID, ThreadID: threadID}, nil
}

// InsertOutgoing persists a sync echo as an outbound record. A threadID
// <= 0 means the thread is looked up or created from the destination
// address.
func (s *Store) InsertOutgoing(ctx context.Context, msg *models.OutgoingMessage, threadID int64) (*models.InsertResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if threadID <= 0 {
		err = tx.QueryRow(ctx, `
			INSERT INTO threads (address)
			VALUES ($1)
			ON CONFLICT (address) DO UPDATE SET
				address = EXCLUDED.address
			RETURNING id
		`, msg.To.String()).Scan(&threadID)
		if err != nil {
			return nil, fmt.Errorf("failed to get or create thread: %w", err)
		}
	}

	contacts, previews, err := encodeExtras(msg.Contacts, msg.Previews)
	if err != nil {
		return nil, err
	}

	var quoteID *int64
	var quoteAuthor, quoteText *string
	if msg.Quote != nil {
		quoteID = &msg.Quote.ID
		quoteAuthor = &msg.Quote.Author
		quoteText = &msg.Quote.Text
	}

	var messageID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (
			thread_id,
			address,
			sent_at,
			server_at,
			body,
			outgoing,
			is_media,
			expires_in,
			expiration_update,
			quote_id,
			quote_author,
			quote_text,
			contacts,
			previews
		) VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`,
		threadID,
		msg.To.String(),
		msg.SentTimestamp,
		msg.ServerTimestamp,
		msg.Body,
		msg.IsMedia(),
		msg.ExpiresInSeconds,
		msg.ExpirationUpdate,
		quoteID,
		quoteAuthor,
		quoteText,
		contacts,
		previews,
	).Scan(&messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	if err := insertPlaceholders(ctx, tx, messageID, msg.SentTimestamp, msg.Attachments); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit message insert: %w", err)
	}

	return &models.InsertResult{MessageID: messageID, ThreadID: threadID}, nil
}

func insertPlaceholders(ctx context.Context, tx pgx.Tx, messageID, uniqueID int64, attachments []models.AttachmentPointer) error {
	for _, pointer := range attachments {
		_, err := tx.Exec(ctx, `
			INSERT INTO attachments (
				unique_id,
				message_id,
				location,
				key,
				digest,
				size,
				file_name,
				content_type,
				transfer_state
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			uniqueID,
			messageID,
			pointer.Location,
			pointer.Key,
			pointer.Digest,
			pointer.Size,
			pointer.FileName,
			pointer.ContentType,
			int(models.TransferStatePending),
		)
		if err != nil {
			return fmt.Errorf("failed to insert attachment placeholder: %w", err)
		}
	}
	return nil
}

func encodeExtras(contacts []models.SharedContact, previews []models.Preview) ([]byte, []byte, error) {
	var contactsJSON, previewsJSON []byte
	var err error

	if len(contacts) > 0 {
		contactsJSON, err = json.Marshal(contacts)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode contacts: %w", err)
		}
	}
	if len(previews) > 0 {
		previewsJSON, err = json.Marshal(previews)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode previews: %w", err)
		}
	}
	return contactsJSON, previewsJSON, nil
}

// FindMessage returns the message stored for (sentTimestamp, address),
// or nil when none exists.
func (s *Store) FindMessage(ctx context.Context, sentTimestamp int64, address models.Address) (*models.StoredMessage, error) {
	var msg models.StoredMessage
	var addr string

	err := s.pool.QueryRow(ctx, `
		SELECT id, thread_id, address, sent_at, body, outgoing
		FROM messages
		WHERE sent_at = $1 AND address = $2
	`, sentTimestamp, address.String()).Scan(
		&msg.ID,
		&msg.ThreadID,
		&addr,
		&msg.SentAt,
		&msg.Body,
		&msg.Outgoing,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find message: %w", err)
	}

	msg.Address = models.Address(addr)
	return &msg, nil
}

// DeleteMessage removes a message; its attachment placeholders cascade.
func (s *Store) DeleteMessage(ctx context.Context, messageID int64) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM messages WHERE id = $1
	`, messageID)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// MarkDecryptFailed flags a message as an undecryptable placeholder.
func (s *Store) MarkDecryptFailed(ctx context.Context, messageID int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET decrypt_failed = TRUE WHERE id = $1
	`, messageID)
	if err != nil {
		return fmt.Errorf("failed to mark message decrypt-failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// IncrementDeliveryReceipts bumps the delivery receipt count of the
// outbound messages sent to address at the given timestamps.
func (s *Store) IncrementDeliveryReceipts(ctx context.Context, address models.Address, timestamps []int64, deliveredAt int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET
			delivery_receipts = delivery_receipts + 1,
			delivered_at = COALESCE(delivered_at, $3)
		WHERE address = $1 AND sent_at = ANY($2) AND outgoing
	`, address.String(), timestamps, deliveredAt)
	if err != nil {
		return fmt.Errorf("failed to increment delivery receipts: %w", err)
	}
	return nil
}

// IncrementReadReceipts bumps the read receipt count of the outbound
// messages sent to address at the given timestamps.
func (s *Store) IncrementReadReceipts(ctx context.Context, address models.Address, timestamps []int64, readAt int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET
			read_receipts = read_receipts + 1,
			read_at = COALESCE(read_at, $3)
		WHERE address = $1 AND sent_at = ANY($2) AND outgoing
	`, address.String(), timestamps, readAt)
	if err != nil {
		return fmt.Errorf("failed to increment read receipts: %w", err)
	}
	return nil
}

// SetServerID records the server-assigned identifier of a message.
func (s *Store) SetServerID(ctx context.Context, messageID, serverID int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET server_id = $2 WHERE id = $1
	`, messageID, serverID)
	if err != nil {
		return fmt.Errorf("failed to set server id: %w", err)
	}
	return nil
}

// SetOriginalThreadID records the thread the message would have
// belonged to absent sync retargeting.
func (s *Store) SetOriginalThreadID(ctx context.Context, messageID, threadID int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET original_thread_id = $2 WHERE id = $1
	`, messageID, threadID)
	if err != nil {
		return fmt.Errorf("failed to set original thread id: %w", err)
	}
	return nil
}
