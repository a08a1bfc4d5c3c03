package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/quietwire/mercury/internal/models"
)

// InsertEnvelope stores an envelope in the pending inbox and returns
// its assigned identifier.
func (s *Store) InsertEnvelope(ctx context.Context, envelope *models.Envelope) (int64, error) {
	var id int64

	err := s.pool.QueryRow(ctx, `
		INSERT INTO envelopes (type, source, source_device, sent_at, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`,
		int(envelope.Type),
		envelope.Source,
		envelope.SourceDevice,
		envelope.Timestamp,
		envelope.Content,
	).Scan(&id)

	if err != nil {
		return 0, fmt.Errorf("failed to insert envelope: %w", err)
	}

	envelope.ID = id
	return id, nil
}

// Envelope returns the stored envelope, or nil when it was already
// consumed.
func (s *Store) Envelope(ctx context.Context, id int64) (*models.Envelope, error) {
	var envelope models.Envelope
	var envelopeType int

	err := s.pool.QueryRow(ctx, `
		SELECT id, type, source, source_device, sent_at, content
		FROM envelopes
		WHERE id = $1
	`, id).Scan(
		&envelope.ID,
		&envelopeType,
		&envelope.Source,
		&envelope.SourceDevice,
		&envelope.Timestamp,
		&envelope.Content,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get envelope: %w", err)
	}

	envelope.Type = models.EnvelopeType(envelopeType)
	return &envelope, nil
}

// DeleteEnvelope removes a consumed envelope from the pending inbox.
func (s *Store) DeleteEnvelope(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM envelopes WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete envelope: %w", err)
	}
	return nil
}

// PendingEnvelopeIDs returns the identifiers of all stored envelopes in
// arrival order, for replay once key material exists.
func (s *Store) PendingEnvelopeIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM envelopes ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list envelopes: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan envelope id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating envelopes: %w", err)
	}

	return ids, nil
}
