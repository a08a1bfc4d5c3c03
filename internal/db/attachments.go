package db

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/quietwire/mercury/internal/models"
)

// Attachment returns the attachment placeholder, or nil when it no
// longer exists.
func (s *Store) Attachment(ctx context.Context, id models.AttachmentID) (*models.Attachment, error) {
	var attachment models.Attachment
	var transferState int

	err := s.pool.QueryRow(ctx, `
		SELECT
			row_id,
			unique_id,
			message_id,
			location,
			key,
			digest,
			size,
			file_name,
			content_type,
			transfer_state
		FROM attachments
		WHERE row_id = $1 AND unique_id = $2
	`, id.RowID, id.UniqueID).Scan(
		&attachment.ID.RowID,
		&attachment.ID.UniqueID,
		&attachment.MessageID,
		&attachment.Location,
		&attachment.Key,
		&attachment.Digest,
		&attachment.Size,
		&attachment.FileName,
		&attachment.ContentType,
		&transferState,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}

	attachment.TransferState = models.TransferState(transferState)
	return &attachment, nil
}

// AttachmentsForMessage returns all attachment placeholders of a message.
func (s *Store) AttachmentsForMessage(ctx context.Context, messageID int64) ([]*models.Attachment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			row_id,
			unique_id,
			message_id,
			location,
			key,
			digest,
			size,
			file_name,
			content_type,
			transfer_state
		FROM attachments
		WHERE message_id = $1
		ORDER BY row_id
	`, messageID)

	if err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	defer rows.Close()

	var attachments []*models.Attachment
	for rows.Next() {
		var attachment models.Attachment
		var transferState int
		if err := rows.Scan(
			&attachment.ID.RowID,
			&attachment.ID.UniqueID,
			&attachment.MessageID,
			&attachment.Location,
			&attachment.Key,
			&attachment.Digest,
			&attachment.Size,
			&attachment.FileName,
			&attachment.ContentType,
			&transferState,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachment.TransferState = models.TransferState(transferState)
		attachments = append(attachments, &attachment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}

	return attachments, nil
}

// SetTransferState moves an attachment through the transfer state
// machine.
func (s *Store) SetTransferState(ctx context.Context, messageID int64, id models.AttachmentID, state models.TransferState) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE attachments SET transfer_state = $4
		WHERE row_id = $1 AND unique_id = $2 AND message_id = $3
	`, id.RowID, id.UniqueID, messageID, int(state))
	if err != nil {
		return fmt.Errorf("failed to set transfer state: %w", err)
	}
	return nil
}

// FinalizeDownload fills the attachment placeholder from the plaintext
// stream and marks the transfer done in one statement.
func (s *Store) FinalizeDownload(ctx context.Context, messageID int64, id models.AttachmentID, content io.Reader) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("failed to read attachment content: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE attachments SET
			content = $4,
			size = $5,
			transfer_state = $6
		WHERE row_id = $1 AND unique_id = $2 AND message_id = $3
	`, id.RowID, id.UniqueID, messageID, data, int64(len(data)), int(models.TransferStateDone))
	if err != nil {
		return fmt.Errorf("failed to store attachment content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("attachment %s not found", id)
	}
	return nil
}

// AttachmentContent returns the downloaded bytes of an attachment, or
// nil when the transfer has not completed.
func (s *Store) AttachmentContent(ctx context.Context, id models.AttachmentID) ([]byte, error) {
	var content []byte

	err := s.pool.QueryRow(ctx, `
		SELECT content FROM attachments
		WHERE row_id = $1 AND unique_id = $2
	`, id.RowID, id.UniqueID).Scan(&content)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get attachment content: %w", err)
	}

	return content, nil
}
