package storage

import (
	"context"
	"time"

	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/models"
)

// AcquireReplicaCounter upserts the counter row for one logical frame and
// takes its row lock. Two receptions of the same frame arriving on different
// workers serialize here, so the recount that follows always sees the
// winner's insert. Call inside a transaction.
func (s *PostgresStore) AcquireReplicaCounter(ctx context.Context, devAddr string, fCnt int) error {
	query := `
        INSERT INTO replica_counters (dev_addr, f_cnt, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (dev_addr, f_cnt) DO UPDATE SET updated_at = EXCLUDED.updated_at`

	_, err := s.getDB().ExecContext(ctx, query, devAddr, fCnt, time.Now())
	return err
}

// CountUplinkReplicas counts stored receptions of one logical frame, grouped
// by receiving gateway
func (s *PostgresStore) CountUplinkReplicas(ctx context.Context, devAddr string, fCnt int) (map[string]int, error) {
	query := `
        SELECT gateway_id, COUNT(*)
        FROM uplinks
        WHERE dev_addr = $1 AND f_cnt = $2
        GROUP BY gateway_id`

	rows, err := s.getDB().QueryContext(ctx, query, devAddr, fCnt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var gatewayID string
		var n int
		if err := rows.Scan(&gatewayID, &n); err != nil {
			return nil, err
		}
		counts[gatewayID] = n
	}

	return counts, rows.Err()
}

// UpdateReplicaCounter writes the recomputed counters for one logical frame
func (s *PostgresStore) UpdateReplicaCounter(ctx context.Context, rc *models.ReplicaCounter) error {
	query := `
        UPDATE replica_counters SET
            max_replicas_at_gateway = $3,
            total_received = $4,
            total_lost = $5,
            gateway_count = $6,
            updated_at = $7
        WHERE dev_addr = $1 AND f_cnt = $2`

	result, err := s.getDB().ExecContext(ctx, query,
		rc.DevAddr, rc.FCnt,
		rc.MaxReplicasAtGateway, rc.TotalReceived, rc.TotalLost, rc.GatewayCount,
		time.Now(),
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
