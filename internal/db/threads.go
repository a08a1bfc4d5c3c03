package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/quietwire/mercury/internal/models"
)

// GetOrCreateThread returns the thread for an address, creating it if
// none exists yet.
func (s *Store) GetOrCreateThread(ctx context.Context, address models.Address) (int64, error) {
	var threadID int64

	err := s.pool.QueryRow(ctx, `
		INSERT INTO threads (address)
		VALUES ($1)
		ON CONFLICT (address) DO UPDATE SET
			address = EXCLUDED.address
		RETURNING id
	`, address.String()).Scan(&threadID)

	if err != nil {
		return 0, fmt.Errorf("failed to get or create thread: %w", err)
	}

	return threadID, nil
}

// ThreadFor returns the existing thread for an address; ok is false
// when no thread exists yet.
func (s *Store) ThreadFor(ctx context.Context, address models.Address) (int64, bool, error) {
	var threadID int64

	err := s.pool.QueryRow(ctx, `
		SELECT id FROM threads WHERE address = $1
	`, address.String()).Scan(&threadID)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, fmt.Errorf("failed to get thread: %w", err)
	}

	return threadID, true, nil
}
