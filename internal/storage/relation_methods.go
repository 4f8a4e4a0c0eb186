package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/models"
)

// ListRelations lists all device relations recorded for one device address
// at one gateway. More than one row means the address was reused.
func (s *PostgresStore) ListRelations(ctx context.Context, devAddr, gatewayID string) ([]*models.DeviceGatewayRelation, error) {
	query := `
        SELECT id, dev_addr, gateway_id, device_id, application_id, last_f_cnt, updated_at
        FROM device_gateway_relations
        WHERE dev_addr = $1 AND gateway_id = $2`

	rows, err := s.getDB().QueryContext(ctx, query, devAddr, gatewayID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rels []*models.DeviceGatewayRelation
	for rows.Next() {
		rel := &models.DeviceGatewayRelation{}
		err := rows.Scan(
			&rel.ID, &rel.DevAddr, &rel.GatewayID, &rel.DeviceID,
			&rel.ApplicationID, &rel.LastFCnt, &rel.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}

	return rels, rows.Err()
}

// UpsertRelation records the latest frame counter of one identified device
// at one gateway, inserting the relation on first sight
func (s *PostgresStore) UpsertRelation(ctx context.Context, rel *models.DeviceGatewayRelation) error {
	if rel.ID == uuid.Nil {
		rel.ID = uuid.New()
	}

	query := `
        INSERT INTO device_gateway_relations (
            id, dev_addr, gateway_id, device_id, application_id, last_f_cnt, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (dev_addr, gateway_id, device_id, application_id)
        DO UPDATE SET last_f_cnt = EXCLUDED.last_f_cnt, updated_at = EXCLUDED.updated_at`

	_, err := s.getDB().ExecContext(ctx, query,
		rel.ID, rel.DevAddr, rel.GatewayID, rel.DeviceID,
		rel.ApplicationID, rel.LastFCnt, time.Now(),
	)

	return err
}
