package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/models"
)

// GetCheckpoint fetches a named aggregation watermark
func (s *PostgresStore) GetCheckpoint(ctx context.Context, name string) (*models.AggregationCheckpoint, error) {
	cp := &models.AggregationCheckpoint{}
	err := s.getDB().QueryRowContext(ctx,
		"SELECT name, watermark, updated_at FROM aggregation_checkpoints WHERE name = $1",
		name,
	).Scan(&cp.Name, &cp.Watermark, &cp.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return cp, nil
}

// SaveCheckpoint persists a watermark, creating the row on first save
func (s *PostgresStore) SaveCheckpoint(ctx context.Context, cp *models.AggregationCheckpoint) error {
	query := `
        INSERT INTO aggregation_checkpoints (name, watermark, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (name) DO UPDATE SET
            watermark = EXCLUDED.watermark,
            updated_at = EXCLUDED.updated_at`

	_, err := s.getDB().ExecContext(ctx, query, cp.Name, cp.Watermark, time.Now())
	return err
}
