package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/quietwire/mercury/internal/models"
)

// Group returns the locally known group, or nil when the group is
// unknown.
func (s *Store) Group(ctx context.Context, encodedID models.Address) (*models.Group, error) {
	group := &models.Group{EncodedID: encodedID}

	err := s.pool.QueryRow(ctx, `
		SELECT title, members, admins, active
		FROM groups
		WHERE encoded_id = $1
	`, encodedID.String()).Scan(
		&group.Title,
		&group.Members,
		&group.Admins,
		&group.Active,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	return group, nil
}

// CreateGroup inserts a new group. Creating a group that already exists
// updates it instead, so a replayed creation message stays idempotent.
func (s *Store) CreateGroup(ctx context.Context, group *models.Group) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO groups (encoded_id, title, members, admins, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (encoded_id) DO UPDATE SET
			title = EXCLUDED.title,
			members = EXCLUDED.members,
			admins = EXCLUDED.admins,
			active = EXCLUDED.active
	`,
		group.EncodedID.String(),
		group.Title,
		group.Members,
		group.Admins,
		group.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

// UpdateGroup overwrites a group's state.
func (s *Store) UpdateGroup(ctx context.Context, group *models.Group) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE groups SET
			title = $2,
			members = $3,
			admins = $4,
			active = $5
		WHERE encoded_id = $1
	`,
		group.EncodedID.String(),
		group.Title,
		group.Members,
		group.Admins,
		group.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("group %s not found", group.EncodedID)
	}
	return nil
}
