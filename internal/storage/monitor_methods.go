package storage

import (
	"context"
	"time"

	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/models"
)

// AddMonitoredGateway adds one gateway to the monitoring working set.
// Adding an already-monitored gateway is a no-op.
func (s *PostgresStore) AddMonitoredGateway(ctx context.Context, gatewayID string) error {
	query := `
        INSERT INTO monitored_gateways (gateway_id, added_at)
        VALUES ($1, $2)
        ON CONFLICT (gateway_id) DO NOTHING`

	_, err := s.getDB().ExecContext(ctx, query, gatewayID, time.Now())
	return err
}

// RemoveMonitoredGateway removes one gateway from the monitoring working set
func (s *PostgresStore) RemoveMonitoredGateway(ctx context.Context, gatewayID string) error {
	result, err := s.getDB().ExecContext(ctx,
		"DELETE FROM monitored_gateways WHERE gateway_id = $1", gatewayID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ListMonitoredGateways lists the monitoring working set
func (s *PostgresStore) ListMonitoredGateways(ctx context.Context) ([]*models.MonitoredGateway, error) {
	rows, err := s.getDB().QueryContext(ctx,
		"SELECT gateway_id, added_at FROM monitored_gateways ORDER BY gateway_id ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gws []*models.MonitoredGateway
	for rows.Next() {
		gw := &models.MonitoredGateway{}
		if err := rows.Scan(&gw.GatewayID, &gw.AddedAt); err != nil {
			return nil, err
		}
		gws = append(gws, gw)
	}

	return gws, rows.Err()
}
