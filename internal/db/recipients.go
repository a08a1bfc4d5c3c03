package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/quietwire/mercury/internal/models"
)

// Recipient returns the resolved identity with local policy flags.
// Unknown addresses yield a zero-value recipient, never nil.
func (s *Store) Recipient(ctx context.Context, address models.Address) (*models.Recipient, error) {
	recipient := &models.Recipient{Address: address}

	err := s.pool.QueryRow(ctx, `
		SELECT blocked, muted, expire_messages, force_fallback, profile_key
		FROM recipients
		WHERE address = $1
	`, address.String()).Scan(
		&recipient.Blocked,
		&recipient.Muted,
		&recipient.ExpireMessages,
		&recipient.ForceFallback,
		&recipient.ProfileKey,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return recipient, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get recipient: %w", err)
	}

	return recipient, nil
}

// SetBlocked sets the blocked flag for an address.
func (s *Store) SetBlocked(ctx context.Context, address models.Address, blocked bool) error {
	return s.upsertRecipientFlag(ctx, address, "blocked", blocked)
}

// SetForceFallback sets the fallback transport flag for an address.
func (s *Store) SetForceFallback(ctx context.Context, address models.Address, enabled bool) error {
	return s.upsertRecipientFlag(ctx, address, "force_fallback", enabled)
}

// SetExpireMessages sets the disappearing messages timer for an address.
func (s *Store) SetExpireMessages(ctx context.Context, address models.Address, seconds int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO recipients (address, expire_messages)
		VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET
			expire_messages = EXCLUDED.expire_messages
	`, address.String(), seconds)
	if err != nil {
		return fmt.Errorf("failed to set expire messages: %w", err)
	}
	return nil
}

// SetProfileKey records the profile decryption key for an address.
func (s *Store) SetProfileKey(ctx context.Context, address models.Address, key []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO recipients (address, profile_key)
		VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET
			profile_key = EXCLUDED.profile_key
	`, address.String(), key)
	if err != nil {
		return fmt.Errorf("failed to set profile key: %w", err)
	}
	return nil
}

func (s *Store) upsertRecipientFlag(ctx context.Context, address models.Address, column string, value bool) error {
	// column comes from a fixed call-site set, never from input.
	query := fmt.Sprintf(`
		INSERT INTO recipients (address, %s)
		VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET
			%s = EXCLUDED.%s
	`, column, column, column)

	_, err := s.pool.Exec(ctx, query, address.String(), value)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", column, err)
	}
	return nil
}
