package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/quietwire/mercury/internal/jobs"
)

// PersistJob saves or updates a durable job record.
func (s *Store) PersistJob(ctx context.Context, record *jobs.Record) error {
	data, err := json.Marshal(record.Data)
	if err != nil {
		return fmt.Errorf("failed to encode job data: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (id, factory_key, queue_key, data, attempts, max_attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			attempts = EXCLUDED.attempts
	`,
		record.ID,
		record.FactoryKey,
		record.QueueKey,
		data,
		record.Attempts,
		record.MaxAttempts,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to persist job: %w", err)
	}
	return nil
}

// DeleteJob removes a resolved job record.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM jobs WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// PendingJobs returns all persisted job records in creation order.
func (s *Store) PendingJobs(ctx context.Context) ([]*jobs.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, factory_key, queue_key, data, attempts, max_attempts, created_at
		FROM jobs
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var records []*jobs.Record
	for rows.Next() {
		var record jobs.Record
		var data []byte
		if err := rows.Scan(
			&record.ID,
			&record.FactoryKey,
			&record.QueueKey,
			&data,
			&record.Attempts,
			&record.MaxAttempts,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		if err := json.Unmarshal(data, &record.Data); err != nil {
			return nil, fmt.Errorf("failed to decode job data: %w", err)
		}
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return records, nil
}
